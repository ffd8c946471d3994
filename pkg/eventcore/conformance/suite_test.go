// Package conformance exercises every eventcore.Providers backend against
// the same behavioral contract, proving memstore, sqlitestore and postgres
// satisfy EventStore identically.
package conformance

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConformance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EventCore Backend Conformance Suite")
}

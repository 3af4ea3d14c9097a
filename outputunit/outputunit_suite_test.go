package outputunit_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestOutputUnit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OutputUnit Suite")
}

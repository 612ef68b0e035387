package driver

import (
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

//go:generate go run go.uber.org/mock/mockgen -destination "mock_integrators_test.go" -package $GOPACKAGE -write_package_comment=false github.com/san-kum/rflf/internal/integrators Stepper

func TestDriver(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(GinkgoWriter, nil)))
	RegisterFailHandler(Fail)
	RunSpecs(t, "Driver Suite")
}

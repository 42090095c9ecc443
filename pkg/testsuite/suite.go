// Package testsuite is the explicit test harness: a logger and a registry loaded with the shared
// catalog, created in BeforeEach/BeforeSuite and torn down with Close.
package testsuite

import (
	"context"

	. "github.com/onsi/ginkgo/v2"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/liverel/internal/testutils"
	"github.com/l7mp/liverel/pkg/relation"
	"github.com/l7mp/liverel/pkg/retain"
)

type Suite struct {
	LogLevel int
	Ctx      context.Context
	Cancel   context.CancelFunc
	Log      logr.Logger
	Registry *relation.Registry
	// Owner is a retainer for the relations built by a test.
	Owner *retain.Owner
}

// New creates a harness with the shared catalog declared and its fixtures loaded.
func New(loglevel int) (*Suite, error) {
	s := &Suite{LogLevel: loglevel, Owner: retain.NewOwner("test")}

	opts := zap.Options{
		Development:     true,
		DestWriter:      GinkgoWriter,
		StacktraceLevel: zapcore.Level(4),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapcore.Level(loglevel), //nolint:gosec
	}
	s.Log = zap.New(zap.UseFlagOptions(&opts))
	s.Ctx, s.Cancel = context.WithCancel(context.Background())

	By("loading the test catalog")
	r, err := relation.NewRegistry(relation.Options{Logger: s.Log})
	if err != nil {
		return nil, err
	}
	if err := r.LoadCatalog([]byte(testutils.TestCatalog)); err != nil {
		return nil, err
	}
	if err := r.LoadFixtures(); err != nil {
		return nil, err
	}
	s.Registry = r

	return s, nil
}

// Set returns a set of the registry and fails the test if it does not exist.
func (s *Suite) Set(name string) *relation.Set {
	set, err := s.Registry.Set(name)
	if err != nil {
		Fail(err.Error())
	}
	return set
}

func (s *Suite) Close() {
	if err := s.Registry.Close(); err != nil {
		s.Log.Error(err, "closing the registry")
	}
	s.Cancel()
}

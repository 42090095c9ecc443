package relation

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("Registry", func() {
	It("should register sets once", func() {
		reg, err := NewRegistry(Options{Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		s, err := reg.NewSet("users")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.IsRetainedBy(reg.Owner())).To(BeTrue())

		_, err = reg.NewSet("users")
		Expect(err).To(MatchError(ErrIdentityConflict))
		_, err = reg.Set("nonexistent")
		Expect(err).To(MatchError(ErrUnknownAttribute))
		Expect(reg.Sets()).To(Equal([]*Set{s}))
		Expect(reg.Close()).To(Succeed())
		Expect(s.IsRetained()).To(BeFalse())
	})

	It("should load a catalog and its fixtures", func() {
		f := newFixture()
		defer f.close()

		Expect(f.registry.Sets()).To(HaveLen(3))
		Expect(f.users.MustAttribute("age").Type()).To(Equal(TypeInteger))
		Expect(f.users.MustAttribute("city").IsSynthetic()).To(BeTrue())
		Expect(find(f.users, "nathan").Value("age")).To(Equal(int64(33)))
		Expect(find(f.users, "bob").Value("hobby")).To(Equal("Bomb construction"))
	})

	It("should reject a malformed catalog", func() {
		reg, err := NewRegistry(Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.LoadCatalog([]byte("sets: [{name: users, attributes: [{name: age, type: bigint}]}]"))).
			To(MatchError(ErrInvalidValue))
		Expect(reg.LoadCatalog([]byte("sets: {"))).NotTo(Succeed())
	})

	It("should not run creation hooks on fixtures", func() {
		reg, err := NewRegistry(Options{})
		Expect(err).NotTo(HaveOccurred())
		s, err := reg.NewSet("things")
		Expect(err).NotTo(HaveOccurred())
		created := 0
		s.SetCreateHook(func(*PrimitiveTuple) error { created++; return nil })

		reg.AddFixture(s, "b", nil)
		reg.AddFixture(s, "a", nil)
		Expect(reg.LoadFixtures()).To(Succeed())
		Expect(created).To(Equal(0))
		Expect(keysOf(s)).To(Equal([]string{"things/a", "things/b"}))

		_, err = s.Create(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(Equal(1))
	})

	It("should clear every set", func() {
		f := newFixture()
		defer f.close()
		Expect(f.registry.Clear()).To(Succeed())
		for _, s := range f.registry.Sets() {
			Expect(s.Len()).To(Equal(0))
		}
	})

	It("should bound reentrant dispatch", func() {
		reg, err := NewRegistry(Options{MaxDispatchDepth: 4})
		Expect(err).NotTo(HaveOccurred())
		s, err := reg.NewSet("counters")
		Expect(err).NotTo(HaveOccurred())
		_, err = s.AddAttribute("n", TypeInteger, AttributeOptions{Default: 0})
		Expect(err).NotTo(HaveOccurred())
		t, err := s.Create(nil)
		Expect(err).NotTo(HaveOccurred())

		// each update triggers another one
		_, err = s.OnTupleUpdate(func(ev UpdateEvent) error {
			n := ev.New.(int64)
			return ev.Tuple.(*PrimitiveTuple).Update("n", n+1)
		})
		Expect(err).NotTo(HaveOccurred())

		err = t.Update("n", 1)
		Expect(errors.Is(err, ErrRecursionLimit)).To(BeTrue())
	})
})

var _ = Describe("Metrics", func() {
	It("should count events and set sizes", func() {
		promReg := prometheus.NewRegistry()
		reg, err := NewRegistry(Options{Registerer: promReg})
		Expect(err).NotTo(HaveOccurred())
		s, err := reg.NewSet("things")
		Expect(err).NotTo(HaveOccurred())

		t, err := s.Create(nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Create(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Delete()).To(Succeed())

		Expect(testutil.CollectAndCount(reg.env.metrics.events)).To(Equal(2))
		Expect(testutil.ToFloat64(reg.env.metrics.events.WithLabelValues("set", "insert"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(reg.env.metrics.events.WithLabelValues("set", "delete"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(reg.env.metrics.tuples.WithLabelValues("things"))).To(Equal(1.0))
	})

	It("should share collectors between registries on the same registerer", func() {
		promReg := prometheus.NewRegistry()
		r1, err := NewRegistry(Options{Registerer: promReg})
		Expect(err).NotTo(HaveOccurred())
		r2, err := NewRegistry(Options{Registerer: promReg})
		Expect(err).NotTo(HaveOccurred())
		Expect(r1.env.metrics.events).To(BeIdenticalTo(r2.env.metrics.events))
	})

	It("should be a no-op when disabled", func() {
		var m *Metrics
		m.event(KindSet, "insert")
		m.setTuples("things", 1)
	})
})

// fakeRepository serves canned rows and records pushes.
type fakeRepository struct {
	rows   []Row
	pushed []string
	err    error
}

func (r *fakeRepository) Fetch(_ context.Context, _ Relation) ([]Row, error) { return r.rows, r.err }

func (r *fakeRepository) Push(_ context.Context, rel Relation) error {
	if r.err != nil {
		return r.err
	}
	r.pushed = append(r.pushed, rel.String())
	return nil
}

var _ = Describe("Repository", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
	})
	AfterEach(func() { f.close() })

	It("should merge fetched rows into the base set", func() {
		repo := &fakeRepository{rows: []Row{
			{"id": "nathan", "name": "Ignored"},
			{"id": "dora", "name": "Dora", "age": 51.0, "unknown": true},
		}}
		sel := f.users.Where(f.users.MustAttribute("age").Gt(50))
		f.retain(sel)

		Expect(Pull(ctx, repo, sel)).To(Succeed())
		dora := find(f.users, "dora")
		Expect(dora.Value("age")).To(Equal(int64(51)))
		Expect(dora.IsNew()).To(BeFalse())
		Expect(find(f.users, "nathan").Value("name")).To(Equal("Nathan"))
		Expect(keysOf(sel)).To(Equal([]string{"users/dora"}))
	})

	It("should refuse rows without an id", func() {
		repo := &fakeRepository{rows: []Row{{"name": "Nobody"}}}
		Expect(Pull(ctx, repo, f.users)).To(MatchError(ErrInvalidValue))
	})

	It("should refuse pulling into a join", func() {
		join := f.users.Join(f.photos).On(f.photos.MustAttribute("user_id").Eq(f.users.MustAttribute("id")))
		Expect(Pull(ctx, &fakeRepository{}, join)).To(MatchError(ErrUnsupportedOperation))
	})

	It("should push and acknowledge tuples", func() {
		repo := &fakeRepository{}
		t, err := f.cameras.Create(map[string]any{"name": "Leica"})
		Expect(err).NotTo(HaveOccurred())
		Expect(t.IsNew()).To(BeTrue())

		Expect(Push(ctx, repo, f.cameras)).To(Succeed())
		Expect(repo.pushed).To(Equal([]string{"cameras"}))
		Expect(t.IsNew()).To(BeFalse())
	})

	It("should push a join as one projection per set", func() {
		repo := &fakeRepository{}
		join := f.users.Join(f.photos).On(f.photos.MustAttribute("user_id").Eq(f.users.MustAttribute("id")))
		Expect(Push(ctx, repo, join)).To(Succeed())
		Expect(repo.pushed).To(HaveLen(2))
		Expect(repo.pushed[0]).To(HavePrefix("π[users]"))
		Expect(repo.pushed[1]).To(HavePrefix("π[photos]"))
		Expect(find(f.users, "nathan").IsNew()).To(BeFalse())
		Expect(find(f.users, "bob").IsNew()).To(BeTrue())
	})

	It("should not acknowledge on failure", func() {
		repo := &fakeRepository{err: errors.New("disk full")}
		Expect(Push(ctx, repo, f.cameras)).NotTo(Succeed())
		Expect(find(f.cameras, "canon").IsNew()).To(BeTrue())
	})
})

var _ = Describe("Compile", func() {
	It("should expose the operator tree", func() {
		f := newFixture()
		defer f.close()

		age := f.users.MustAttribute("age")
		join := f.users.Where(age.Gt(30)).Join(f.photos).On(f.photos.MustAttribute("user_id").Eq(f.users.MustAttribute("id")))
		proj, err := join.OrderBy(Desc(age)).Project(f.photos)
		Expect(err).NotTo(HaveOccurred())

		plan, err := Compile(proj.Singleton())
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Kind).To(Equal(KindProjection))
		Expect(plan.Singleton).To(BeTrue())
		Expect(plan.Set).To(BeIdenticalTo(f.photos))

		ordering := plan.Operands[0]
		Expect(ordering.Kind).To(Equal(KindOrdering))
		Expect(ordering.Order).To(Equal([]OrderTerm{Desc(age)}))

		joinPlan := ordering.Operands[0]
		Expect(joinPlan.Kind).To(Equal(KindInnerJoin))
		Expect(joinPlan.Predicate).To(BeIdenticalTo(join.Predicate()))
		Expect(joinPlan.Operands[0].Kind).To(Equal(KindSelection))
		Expect(joinPlan.Operands[0].Operands[0].Set).To(BeIdenticalTo(f.users))
		Expect(plan.Sets()).To(Equal([]*Set{f.users, f.photos}))
	})
})

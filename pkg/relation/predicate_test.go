package relation

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liverel/pkg/retain"
)

var _ = Describe("Predicate", func() {
	var (
		f      *fixture
		nathan *PrimitiveTuple
		age    Attribute
	)

	BeforeEach(func() {
		f = newFixture()
		nathan = find(f.users, "nathan")
		age = f.users.MustAttribute("age")
	})
	AfterEach(func() { f.close() })

	DescribeTable("comparisons of users.age",
		func(op ComparisonOp, right any, expected bool) {
			Expect(NewComparison(op, age, right).Eval(nathan)).To(Equal(expected))
		},
		Entry("equal", OpEqualTo, 33, true),
		Entry("equal across numeric types", OpEqualTo, 33.0, true),
		Entry("not equal", OpNotEqualTo, 33, false),
		Entry("greater", OpGreaterThan, 30, true),
		Entry("greater or equal", OpGreaterThanOrEqual, 33, true),
		Entry("less", OpLessThan, 33, false),
		Entry("less or equal", OpLessThanOrEqual, 33.5, true),
		Entry("nil is not equal", OpEqualTo, nil, false),
		Entry("nil is not ordered", OpGreaterThan, nil, false),
	)

	It("should accept literals on either side", func() {
		Expect(LessThan(30, age).Eval(nathan)).To(BeTrue())
		Expect(EqualTo(nil, nil).Eval(nathan)).To(BeTrue())
		Expect(LessThan(f.users.MustAttribute("name"), "Zed").Eval(nathan)).To(BeTrue())
	})

	It("should compare datetimes", func() {
		_, err := f.users.AddAttribute("born", TypeDatetime, AttributeOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(nathan.Update("born", "1990-05-01T00:00:00Z")).To(Succeed())

		born := f.users.MustAttribute("born")
		Expect(GreaterThan(born, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)).Eval(nathan)).To(BeTrue())
		Expect(EqualTo(born, time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)).Eval(nathan)).To(BeTrue())
	})

	It("should fail on incomparable operands", func() {
		_, err := GreaterThan(age, "old").Eval(nathan)
		Expect(err).To(MatchError(ErrInvalidValue))
	})

	It("should fail on attributes the tuple does not have", func() {
		_, err := EqualTo(f.photos.MustAttribute("user_id"), "nathan").Eval(nathan)
		Expect(err).To(MatchError(ErrUnknownAttribute))
	})

	It("should combine predicates", func() {
		name := f.users.MustAttribute("name")
		Expect(AllOf(age.Gt(30), name.Eq("Nathan")).Eval(nathan)).To(BeTrue())
		Expect(AllOf(age.Gt(30), name.Eq("Corey")).Eval(nathan)).To(BeFalse())
		Expect(AnyOf(age.Gt(40), name.Eq("Nathan")).Eval(nathan)).To(BeTrue())
		Expect(Negate(age.Gt(40)).Eval(nathan)).To(BeTrue())
		Expect(AllOf().Eval(nathan)).To(BeTrue())
		Expect(AnyOf().Eval(nathan)).To(BeFalse())
	})

	It("should evaluate every child of a junction", func() {
		_, err := AnyOf(age.Gt(30), age.Gt("x")).Eval(nathan)
		Expect(err).To(MatchError(ErrInvalidValue))
	})

	It("should render readable strings", func() {
		p := AllOf(age.Ge(18), Negate(f.users.MustAttribute("name").Eq("Bob")))
		Expect(p.String()).To(Equal(`(users.age >= 18) && (!(users.name == "Bob"))`))
	})

	Describe("signals", func() {
		It("should resolve signal operands to their current value", func() {
			corey := find(f.users, "corey")
			coreyAge, err := corey.Signal("age")
			Expect(err).NotTo(HaveOccurred())

			p := age.Gt(coreyAge)
			Expect(p.Eval(nathan)).To(BeTrue())
			Expect(corey.Update("age", 50)).To(Succeed())
			Expect(p.Eval(nathan)).To(BeFalse())
		})

		It("should fire updates while retained only", func() {
			corey := find(f.users, "corey")
			coreyAge, err := corey.Signal("age")
			Expect(err).NotTo(HaveOccurred())
			p := AllOf(age.Gt(coreyAge), age.Lt(100))

			fired := 0
			p.OnUpdate(func(PredicateChange) error { fired++; return nil })

			Expect(corey.Update("age", 29)).To(Succeed())
			Expect(fired).To(Equal(0))

			owner := retain.NewOwner("predicate")
			Expect(p.RetainedBy(owner)).To(Succeed())
			Expect(coreyAge.IsRetained()).To(BeTrue())
			Expect(corey.Update("age", 30)).To(Succeed())
			Expect(fired).To(Equal(1))

			Expect(p.ReleasedBy(owner)).To(Succeed())
			Expect(coreyAge.IsRetained()).To(BeFalse())
			Expect(corey.Update("age", 31)).To(Succeed())
			Expect(fired).To(Equal(1))
		})

		It("should retain a signal used twice once", func() {
			s, err := nathan.Signal("age")
			Expect(err).NotTo(HaveOccurred())
			p := EqualTo(s, s)
			Expect(p.RetainedBy(retain.NewOwner("twice"))).To(Succeed())
			Expect(s.RefCount()).To(Equal(1))
		})
	})
})

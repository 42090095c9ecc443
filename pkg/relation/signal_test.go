package relation

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liverel/pkg/retain"
)

var _ = Describe("Signal", func() {
	var (
		f      *fixture
		nathan *PrimitiveTuple
		owner  *retain.Owner
	)

	BeforeEach(func() {
		f = newFixture()
		nathan = find(f.users, "nathan")
		owner = retain.NewOwner("signal")
	})
	AfterEach(func() { f.close() })

	It("should read the current field value", func() {
		s, err := nathan.Signal("hobby")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Value()).To(Equal("Yoga"))
		Expect(nathan.Update("hobby", "Chess")).To(Succeed())
		Expect(s.Value()).To(Equal("Chess"))
		Expect(s.String()).To(Equal("signal(users.hobby#nathan)"))
	})

	It("should refuse synthetic and unknown attributes", func() {
		_, err := nathan.Signal("city")
		Expect(err).To(MatchError(ErrUnsupportedOperation))
		_, err = nathan.Signal("nonexistent")
		Expect(err).To(MatchError(ErrUnknownAttribute))
		_, err = NewFieldSignal(nathan, f.photos.MustAttribute("name"))
		Expect(err).To(MatchError(ErrUnknownAttribute))
	})

	It("should fire changes of its own attribute only while retained", func() {
		s, err := nathan.Signal("hobby")
		Expect(err).NotTo(HaveOccurred())
		changes := []SignalChange{}
		s.OnChange(func(ch SignalChange) error { changes = append(changes, ch); return nil })

		Expect(nathan.Update("hobby", "Chess")).To(Succeed())
		Expect(changes).To(BeEmpty())

		Expect(s.RetainedBy(owner)).To(Succeed())
		Expect(nathan.IsRetainedBy(s)).To(BeTrue())
		Expect(nathan.Update("hobby", "Go")).To(Succeed())
		Expect(nathan.Update("name", "Nate")).To(Succeed())
		Expect(changes).To(Equal([]SignalChange{{Old: "Chess", New: "Go"}}))

		Expect(s.ReleasedBy(owner)).To(Succeed())
		Expect(nathan.IsRetainedBy(s)).To(BeFalse())
		Expect(nathan.Update("hobby", "Poker")).To(Succeed())
		Expect(changes).To(HaveLen(1))
	})

	Describe("DerivedSignal", func() {
		var (
			calls int
			upper Transform
		)

		BeforeEach(func() {
			calls = 0
			upper = func(v any) any {
				calls++
				if v == nil {
					return nil
				}
				return strings.ToUpper(v.(string))
			}
		})

		It("should compute on every read while unretained", func() {
			s, err := nathan.Signal("hobby")
			Expect(err).NotTo(HaveOccurred())
			d := s.Derive(upper)
			Expect(d.Value()).To(Equal("YOGA"))
			Expect(d.Value()).To(Equal("YOGA"))
			Expect(calls).To(Equal(2))
		})

		It("should memoize while retained", func() {
			s, err := nathan.Signal("hobby")
			Expect(err).NotTo(HaveOccurred())
			d := s.Derive(upper)
			Expect(d.RetainedBy(owner)).To(Succeed())

			Expect(d.Value()).To(Equal("YOGA"))
			Expect(d.Value()).To(Equal("YOGA"))
			Expect(calls).To(Equal(1))
		})

		It("should pass both sides of a change through the transform", func() {
			s, err := nathan.Signal("hobby")
			Expect(err).NotTo(HaveOccurred())
			d := s.Derive(upper)
			Expect(d.RetainedBy(owner)).To(Succeed())
			Expect(s.IsRetainedBy(d)).To(BeTrue())

			changes := []SignalChange{}
			d.OnChange(func(ch SignalChange) error { changes = append(changes, ch); return nil })

			Expect(nathan.Update("hobby", "chess")).To(Succeed())
			Expect(changes).To(Equal([]SignalChange{{Old: "YOGA", New: "CHESS"}}))
			Expect(d.Value()).To(Equal("CHESS"))
		})

		It("should use the memoized value as the old side", func() {
			s, err := nathan.Signal("hobby")
			Expect(err).NotTo(HaveOccurred())
			d := s.Derive(upper)
			Expect(d.RetainedBy(owner)).To(Succeed())
			Expect(d.Value()).To(Equal("YOGA"))

			Expect(nathan.Update("hobby", "chess")).To(Succeed())
			Expect(calls).To(Equal(2))
		})

		It("should chain", func() {
			s, err := nathan.Signal("hobby")
			Expect(err).NotTo(HaveOccurred())
			d := s.Derive(upper).Derive(func(v any) any { return v.(string) + "!" })
			Expect(d.RetainedBy(owner)).To(Succeed())

			changes := []SignalChange{}
			d.OnChange(func(ch SignalChange) error { changes = append(changes, ch); return nil })
			Expect(nathan.Update("hobby", "chess")).To(Succeed())
			Expect(changes).To(Equal([]SignalChange{{Old: "YOGA!", New: "CHESS!"}}))
			Expect(d.String()).To(Equal("derived(derived(signal(users.hobby#nathan)))"))
		})

		It("should drop the memoized value on release", func() {
			s, err := nathan.Signal("hobby")
			Expect(err).NotTo(HaveOccurred())
			d := s.Derive(upper)
			Expect(d.RetainedBy(owner)).To(Succeed())
			Expect(d.Value()).To(Equal("YOGA"))
			Expect(d.ReleasedBy(owner)).To(Succeed())

			Expect(nathan.Update("hobby", "chess")).To(Succeed())
			Expect(d.Value()).To(Equal("CHESS"))
		})
	})
})

package relation

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liverel/internal/testutils"
)

var _ = Describe("InnerJoin", func() {
	var (
		f    *fixture
		join *InnerJoin
	)

	BeforeEach(func() {
		f = newFixture()
		join = f.users.Join(f.photos).On(f.photos.MustAttribute("user_id").Eq(f.users.MustAttribute("id")))
	})
	AfterEach(func() { f.close() })

	It("should compute the filtered cartesian product on demand", func() {
		Expect(keysOf(join)).To(Equal([]string{
			"(users/corey,photos/corey_photo_1)",
			"(users/nathan,photos/nathan_photo_1)",
			"(users/nathan,photos/nathan_photo_2)",
		}))
	})

	It("should expose its structure", func() {
		Expect(join.Kind()).To(Equal(KindInnerJoin))
		Expect(join.IsCompound()).To(BeTrue())
		Expect(join.ComposedSets()).To(Equal([]*Set{f.users, f.photos}))
		Expect(join.HasAttribute(f.photos.MustAttribute("name"))).To(BeTrue())
		Expect(join.HasAttribute(f.cameras.MustAttribute("name"))).To(BeFalse())

		_, err := join.Attribute("name")
		Expect(err).To(MatchError(ErrUnknownAttribute))
		a, err := join.Attribute("photos.name")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Set()).To(BeIdenticalTo(f.photos))
		a, err = join.Attribute("hobby")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Set()).To(BeIdenticalTo(f.users))
	})

	It("should refuse merge and base set", func() {
		Expect(join.Merge(nil)).To(MatchError(ErrUnsupportedOperation))
		_, err := join.BaseSet()
		Expect(err).To(MatchError(ErrUnsupportedOperation))
		_, err = join.Find("nathan")
		Expect(err).To(MatchError(ErrUnsupportedOperation))
	})

	It("should resolve attributes of nested tuples", func() {
		first, err := join.First()
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Get(f.users.MustAttribute("name"))).To(Equal("Corey"))
		Expect(first.Get(f.photos.MustAttribute("name"))).To(Equal("Photo From Corey"))
		_, err = first.Get(f.cameras.MustAttribute("name"))
		Expect(err).To(MatchError(ErrUnknownAttribute))

		Expect(first.HasSet(f.photos)).To(BeTrue())
		Expect(first.HasSet(f.cameras)).To(BeFalse())
		p, err := first.TupleFor(f.photos)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeIdenticalTo(find(f.photos, "corey_photo_1")))
	})

	Context("when retained", func() {
		var rec *testutils.Recorder

		BeforeEach(func() {
			f.retain(join)
			rec = record(join)
		})

		It("should retain the nested tuples through the pairs", func() {
			first, err := join.First()
			Expect(err).NotTo(HaveOccurred())
			pair := first.(*CompoundTuple)
			Expect(pair.IsRetainedBy(join)).To(BeTrue())
			Expect(pair.Left().IsRetainedBy(pair)).To(BeTrue())
			Expect(pair.Right().IsRetainedBy(pair)).To(BeTrue())
		})

		It("should pair a new left tuple", func() {
			alice, err := f.users.NewTupleWithID("alice", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.users.Insert(alice)).To(Succeed())
			rec.ExpectEntries()

			_, err = f.photos.Create(map[string]any{"user_id": "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Count("insert")).To(Equal(1))
			Expect(join.Len()).To(Equal(4))
		})

		It("should pair a new right tuple with every matching left tuple", func() {
			t, err := f.photos.Create(map[string]any{"user_id": "nathan"})
			Expect(err).NotTo(HaveOccurred())
			rec.ExpectEntries("insert:(users/nathan," + t.Key() + ")")
		})

		It("should delete the pairs of a deleted left tuple only", func() {
			Expect(find(f.users, "nathan").Delete()).To(Succeed())
			rec.ExpectEntries(
				"delete:(users/nathan,photos/nathan_photo_1)",
				"delete:(users/nathan,photos/nathan_photo_2)",
			)
			Expect(keysOf(join)).To(Equal([]string{"(users/corey,photos/corey_photo_1)"}))
		})

		It("should delete the pairs of a deleted right tuple", func() {
			Expect(find(f.photos, "nathan_photo_2").Delete()).To(Succeed())
			rec.ExpectEntries("delete:(users/nathan,photos/nathan_photo_2)")
		})

		It("should forward updates of pairs that still match", func() {
			Expect(find(f.users, "nathan").Update("hobby", "Climbing")).To(Succeed())
			rec.ExpectEntries(
				"update:(users/nathan,photos/nathan_photo_1).hobby",
				"update:(users/nathan,photos/nathan_photo_2).hobby",
			)
		})

		It("should move a pair when the join key changes", func() {
			Expect(find(f.photos, "corey_photo_1").Update("user_id", "bob")).To(Succeed())
			rec.ExpectEntries(
				"insert:(users/bob,photos/corey_photo_1)",
				"delete:(users/corey,photos/corey_photo_1)",
			)
		})

		It("should stay complete under arbitrary changes", func() {
			_, err := f.photos.Create(map[string]any{"user_id": "bob"})
			Expect(err).NotTo(HaveOccurred())
			Expect(find(f.photos, "nathan_photo_1").Update("user_id", "corey")).To(Succeed())
			Expect(find(f.users, "corey").Delete()).To(Succeed())
			_, err = f.users.Create(map[string]any{"name": "Dora"})
			Expect(err).NotTo(HaveOccurred())

			fresh := f.users.Join(f.photos).On(f.photos.MustAttribute("user_id").Eq(f.users.MustAttribute("id")))
			Expect(keysOf(join)).To(ConsistOf(keysOf(fresh)))
		})

		It("should release the pairs on deactivation", func() {
			first, err := join.First()
			Expect(err).NotTo(HaveOccurred())
			pair := first.(*CompoundTuple)

			Expect(join.ReleaseFrom(f.owner)).To(Succeed())
			Expect(pair.IsRetained()).To(BeFalse())
			Expect(pair.Left().IsRetainedBy(pair)).To(BeFalse())
			Expect(f.users.RefCount()).To(Equal(1))
		})
	})

	Describe("composition", func() {
		It("should join a join", func() {
			cameraJoin := join.Join(f.cameras).On(f.photos.MustAttribute("camera_id").Eq(f.cameras.MustAttribute("id")))
			f.retain(cameraJoin)
			rec := record(cameraJoin)

			Expect(cameraJoin.ComposedSets()).To(Equal([]*Set{f.users, f.photos, f.cameras}))
			Expect(cameraJoin.Len()).To(Equal(3))

			Expect(find(f.cameras, "minolta").Delete()).To(Succeed())
			Expect(rec.Count("delete")).To(Equal(2))
			Expect(keysOf(cameraJoin)).To(Equal([]string{"((users/corey,photos/corey_photo_1),cameras/canon)"}))
		})

		It("should filter a join", func() {
			sel := join.Where(f.users.MustAttribute("age").Gt(30))
			f.retain(sel)
			rec := record(sel)
			Expect(sel.IsCompound()).To(BeTrue())
			Expect(sel.Len()).To(Equal(2))

			Expect(find(f.users, "corey").Update("age", 31)).To(Succeed())
			rec.ExpectEntries("insert:(users/corey,photos/corey_photo_1)")
		})

		It("should support self joins", func() {
			// both operands resolve to the left tuple, so every pair matches
			self := f.users.Join(f.users).On(f.users.MustAttribute("hobby").Eq(f.users.MustAttribute("hobby")))
			f.retain(self)
			Expect(f.users.IsRetainedBy(self)).To(BeTrue())
			Expect(self.Len()).To(Equal(9))

			eve, err := f.users.Create(map[string]any{"name": "Eve"})
			Expect(err).NotTo(HaveOccurred())
			Expect(self.Len()).To(Equal(16))
			Expect(self.Contains(NewCompoundTuple(eve, eve))).To(BeTrue())
		})

		It("should fire a single update for the diagonal pair of a self join", func() {
			self := f.users.Join(f.users).On(f.users.MustAttribute("hobby").Eq(f.users.MustAttribute("hobby")))
			f.retain(self)
			rec := record(self)

			Expect(find(f.users, "nathan").Update("age", 34)).To(Succeed())
			Expect(rec.Count("update")).To(Equal(5))
			Expect(rec.Entries()).To(ContainElement("update:(users/nathan,users/nathan).age"))
			diagonal := 0
			for _, e := range rec.Entries() {
				if e == "update:(users/nathan,users/nathan).age" {
					diagonal++
				}
			}
			Expect(diagonal).To(Equal(1))
		})
	})
})

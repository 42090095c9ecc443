package relation

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Projection", func() {
	var (
		f    *fixture
		join *InnerJoin
	)

	BeforeEach(func() {
		f = newFixture()
		join = f.users.Join(f.photos).On(f.photos.MustAttribute("user_id").Eq(f.users.MustAttribute("id")))
	})
	AfterEach(func() { f.close() })

	It("should refuse a set the operand is not composed of", func() {
		_, err := join.Project(f.cameras)
		Expect(err).To(MatchError(ErrUnknownAttribute))
	})

	It("should return the distinct tuples of the target set", func() {
		p, err := join.Project(f.users)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.IsCompound()).To(BeFalse())
		Expect(p.ComposedSets()).To(Equal([]*Set{f.users}))
		Expect(p.BaseSet()).To(BeIdenticalTo(f.users))
		Expect(keysOf(p)).To(Equal([]string{"users/corey", "users/nathan"}))
		Expect(p.String()).To(HavePrefix("π[users]("))
	})

	Context("when retained", func() {
		var p *Projection

		BeforeEach(func() {
			var err error
			p, err = join.Project(f.users)
			Expect(err).NotTo(HaveOccurred())
			f.retain(p)
		})

		It("should insert a tuple on its first occurrence only", func() {
			rec := record(p)
			_, err := f.photos.Create(map[string]any{"user_id": "nathan"})
			Expect(err).NotTo(HaveOccurred())
			rec.ExpectEntries()

			_, err = f.photos.Create(map[string]any{"user_id": "bob"})
			Expect(err).NotTo(HaveOccurred())
			rec.ExpectEntries("insert:users/bob")
		})

		It("should delete a tuple on its last occurrence only", func() {
			rec := record(p)
			Expect(find(f.photos, "nathan_photo_1").Delete()).To(Succeed())
			rec.ExpectEntries()
			Expect(find(f.photos, "nathan_photo_2").Delete()).To(Succeed())
			rec.ExpectEntries("delete:users/nathan")
			Expect(keysOf(p)).To(Equal([]string{"users/corey"}))
		})

		It("should forward updates of members once", func() {
			rec := record(p)
			Expect(find(f.users, "nathan").Update("hobby", "Chess")).To(Succeed())
			rec.ExpectEntries("update:users/nathan.hobby")

			Expect(find(f.users, "bob").Update("hobby", "Chess")).To(Succeed())
			Expect(rec.Count("update")).To(Equal(1))
		})

		It("should retain the projected tuples", func() {
			Expect(find(f.users, "nathan").IsRetainedBy(p)).To(BeTrue())
			Expect(find(f.users, "bob").IsRetainedBy(p)).To(BeFalse())
		})
	})
})

var _ = Describe("Ordering", func() {
	var (
		f   *fixture
		age Attribute
	)

	BeforeEach(func() {
		f = newFixture()
		age = f.users.MustAttribute("age")
	})
	AfterEach(func() { f.close() })

	It("should sort on demand", func() {
		Expect(keysOf(f.users.OrderBy(Asc(age)))).To(Equal([]string{"users/corey", "users/nathan", "users/bob"}))
		Expect(keysOf(f.users.OrderBy(Desc(age)))).To(Equal([]string{"users/bob", "users/nathan", "users/corey"}))
	})

	It("should break ties by key and sort nil first", func() {
		hobby := f.users.MustAttribute("hobby")
		o := f.users.OrderBy(Asc(hobby))
		Expect(keysOf(o)).To(Equal([]string{"users/bob", "users/corey", "users/nathan"}))

		Expect(f.users.Insert(mustTuple(f.users.NewTupleWithID("aaron", map[string]any{"hobby": "Drugs"})))).To(Succeed())
		Expect(keysOf(o)).To(Equal([]string{"users/bob", "users/aaron", "users/corey", "users/nathan"}))

		Expect(f.users.Insert(mustTuple(f.users.NewTupleWithID("zed", map[string]any{"hobby": nil})))).To(Succeed())
		Expect(keysOf(o)[0]).To(Equal("users/zed"))
	})

	Context("when retained", func() {
		var o *Ordering

		BeforeEach(func() {
			o = f.users.OrderBy(Asc(age))
			f.retain(o)
		})

		It("should place inserted tuples at their sorted position", func() {
			rec := record(o)
			t, err := f.users.Create(map[string]any{"age": 30})
			Expect(err).NotTo(HaveOccurred())
			Expect(keysOf(o)).To(Equal([]string{"users/corey", t.Key(), "users/nathan", "users/bob"}))
			rec.ExpectEntries("insert:" + t.Key())
		})

		It("should reposition a tuple whose sort key changes", func() {
			rec := record(o)
			Expect(find(f.users, "bob").Update("age", 20)).To(Succeed())
			Expect(keysOf(o)).To(Equal([]string{"users/bob", "users/corey", "users/nathan"}))
			rec.ExpectEntries("update:users/bob.age")

			Expect(find(f.users, "bob").Update("name", "Robert")).To(Succeed())
			Expect(keysOf(o)).To(Equal([]string{"users/bob", "users/corey", "users/nathan"}))
		})

		It("should reposition a tuple when a derived sort key changes", func() {
			byCity := f.users.OrderBy(Asc(f.users.MustAttribute("city")))
			f.retain(byCity)
			Expect(keysOf(byCity)).To(Equal([]string{"users/bob", "users/nathan", "users/corey"}))

			Expect(find(f.users, "nathan").Update("address", map[string]any{"city": "Zurich"})).To(Succeed())
			Expect(keysOf(byCity)).To(Equal([]string{"users/bob", "users/corey", "users/nathan"}))
		})

		It("should remove deleted tuples", func() {
			Expect(find(f.users, "nathan").Delete()).To(Succeed())
			Expect(keysOf(o)).To(Equal([]string{"users/corey", "users/bob"}))
		})

		It("should support singleton access", func() {
			_, err := o.Tuple()
			Expect(err).To(MatchError(ErrUnsupportedOperation))

			youngest, err := o.Singleton().Tuple()
			Expect(err).NotTo(HaveOccurred())
			Expect(youngest.Key()).To(Equal("users/corey"))
			Expect(o.IsSingleton()).To(BeTrue())
		})
	})
})

func mustTuple(t *PrimitiveTuple, err error) *PrimitiveTuple {
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return t
}

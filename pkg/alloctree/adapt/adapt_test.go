package adapt_test

import (
	"testing"
	"unsafe"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/alloctree/alloctree/pkg/alloctree/adapt"
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/multitree"
	"github.com/alloctree/alloctree/pkg/alloctree/source"
)

func TestGlobalMalloc(t *testing.T) {
	Convey("Given a GlobalMalloc wrapping a MultiTree", t, func() {
		src := source.NewHeap()
		g := adapt.GlobalMalloc[*multitree.MultiTree]{Allocator: multitree.New(src)}

		Convey("When mallocing a block", func() {
			p := g.Malloc(128, 8)

			Convey("Then it returns a non-nil pointer", func() {
				So(p, ShouldNotBeNil)
			})

			Convey("Then freeing it does not panic", func() {
				So(func() { g.Free(p, 128, 8) }, ShouldNotPanic)
			})

			Convey("Then growing it via Realloc preserves the prefix", func() {
				*(*byte)(p) = 0x42
				grown := g.Realloc(p, 256, 8, 128)
				So(grown, ShouldNotBeNil)
				So(*(*byte)(grown), ShouldEqual, byte(0x42))
			})

			Convey("Then shrinking it via Realloc keeps the same pointer", func() {
				shrunk := g.Realloc(p, 64, 8, 128)
				So(shrunk, ShouldEqual, p)
			})
		})

		Convey("When mallocing zero bytes", func() {
			p := g.Malloc(0, 8)

			Convey("Then it returns nil", func() {
				So(p, ShouldBeNil)
			})
		})

		Convey("When Reallocing a nil pointer", func() {
			p := g.Realloc(nil, 64, 8, 0)

			Convey("Then it behaves as a fresh Malloc", func() {
				So(p, ShouldNotBeNil)
			})
		})
	})
}

func TestFromRaw(t *testing.T) {
	Convey("Given a FromRaw wrapping a Go-heap-backed allocate/free pair", t, func() {
		live := map[addr.Address][]byte{}

		f := adapt.FromRaw{
			Alloc: func(size, align int) (unsafe.Pointer, error) {
				buf := make([]byte, size+align)
				p := addr.Of(&buf[0]).RoundUpTo(align)
				live[p] = buf
				return p.Ptr(), nil
			},
			Free: func(ptr unsafe.Pointer, size, align int) {
				delete(live, addr.FromPtr(ptr))
			},
		}

		Convey("When allocating a block", func() {
			r := f.Allocate(64, 8)

			Convey("Then it succeeds with a valid address", func() {
				So(r.IsOk(), ShouldBeTrue)
				So(r.Unwrap().Valid(), ShouldBeTrue)
			})

			Convey("Then deallocating it removes it from the backing map", func() {
				p := r.Unwrap()
				f.Deallocate(64, 8, p)
				_, ok := live[p]
				So(ok, ShouldBeFalse)
			})

			Convey("Then growing it copies the old contents into a fresh block", func() {
				p := r.Unwrap()
				*(*byte)(p.Ptr()) = 0x7

				grown := f.GrowingRealloc(128, 8, 64, p)
				So(grown.IsOk(), ShouldBeTrue)
				So(*(*byte)(grown.Unwrap().Ptr()), ShouldEqual, byte(0x7))
			})

			Convey("Then shrinking it returns the same address unchanged", func() {
				p := r.Unwrap()
				So(f.ShrinkingRealloc(8, 8, 64, p), ShouldEqual, p)
			})
		})

		Convey("When allocating zero bytes", func() {
			r := f.Allocate(0, 8)

			Convey("Then it short-circuits to the sentinel without calling Alloc", func() {
				So(r.IsOk(), ShouldBeTrue)
				So(r.Unwrap(), ShouldEqual, addr.Sentinel)
			})
		})
	})
}

func TestZeroGuard(t *testing.T) {
	Convey("Given a ZeroGuard wrapping a MultiTree", t, func() {
		src := source.NewHeap()
		z := adapt.ZeroGuard[*multitree.MultiTree]{Allocator: multitree.New(src)}

		Convey("When allocating zero bytes", func() {
			r := z.Allocate(0, 8)

			Convey("Then it returns the sentinel address without delegating", func() {
				So(r.IsOk(), ShouldBeTrue)
				So(r.Unwrap(), ShouldEqual, addr.Sentinel)
			})
		})

		Convey("When allocating a real size and then deallocating the sentinel", func() {
			r := z.Allocate(64, 8)
			So(r.IsOk(), ShouldBeTrue)

			Convey("Then Deallocate of the sentinel is a no-op", func() {
				So(func() { z.Deallocate(0, 8, addr.Sentinel) }, ShouldNotPanic)
			})
		})

		Convey("When GrowingRealloc is called on the sentinel", func() {
			r := z.GrowingRealloc(64, 8, 0, addr.Sentinel)

			Convey("Then it behaves as a fresh Allocate", func() {
				So(r.IsOk(), ShouldBeTrue)
				So(r.Unwrap(), ShouldNotEqual, addr.Sentinel)
			})
		})

		Convey("When ShrinkingRealloc is called down to zero", func() {
			r := z.Allocate(64, 8)
			p := r.Unwrap()

			Convey("Then it frees the block and returns the sentinel", func() {
				shrunk := z.ShrinkingRealloc(0, 8, 64, p)
				So(shrunk, ShouldEqual, addr.Sentinel)
			})
		})
	})
}

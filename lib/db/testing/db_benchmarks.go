package testing

import (
	"fmt"
	"testing"
)

// RunKVDBBenchmarks runs the standard benchmarks for a KVDB implementation.
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			database := factory()
			defer database.Close()
			value := []byte(`{"id":"p1","cubicInches":12,"paidGlaze":false}`)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = database.Set(fmt.Sprintf("kiln:pieces:%d", i%1000), value)
			}
		})

		b.Run("SetMany", func(b *testing.B) {
			database := factory()
			defer database.Close()
			batch := make(map[string][]byte, 100)
			for i := 0; i < 100; i++ {
				batch[fmt.Sprintf("kiln:pieces:%d", i)] = []byte(`{"paidGlaze":true}`)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = database.SetMany(batch)
			}
		})

		b.Run("Get", func(b *testing.B) {
			database := factory()
			defer database.Close()
			for i := 0; i < 1000; i++ {
				_ = database.Set(fmt.Sprintf("kiln:pieces:%d", i), []byte("value"))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				database.Get(fmt.Sprintf("kiln:pieces:%d", i%1000))
			}
		})

		b.Run("Keys", func(b *testing.B) {
			database := factory()
			defer database.Close()
			for i := 0; i < 1000; i++ {
				_ = database.Set(fmt.Sprintf("kiln:pieces:%d", i), []byte("value"))
				_ = database.Set(fmt.Sprintf("kiln:events:%d", i), []byte("value"))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				database.Keys("kiln:pieces:")
			}
		})
	})
}

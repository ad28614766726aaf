package builder

import (
	"math/rand/v2"
	"sync"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/khushi89012/syook/common/codec"
)

// Source produces the plaintext records of a batch.
type Source interface {
	Next() codec.Record
}

// DatasetSource picks each field independently and uniformly from a Dataset.
type DatasetSource struct {
	data *Dataset

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDatasetSource returns a Source over d. A nil rnd uses a randomly seeded generator.
func NewDatasetSource(d *Dataset, rnd *rand.Rand) *DatasetSource {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &DatasetSource{data: d, rnd: rnd}
}

func (s *DatasetSource) Next() codec.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return codec.Record{
		Name:        pick(s.rnd, s.data.Names),
		Origin:      pick(s.rnd, s.data.Origins),
		Destination: pick(s.rnd, s.data.Destinations),
	}
}

func pick(rnd *rand.Rand, values []string) string {
	return values[rnd.IntN(len(values))]
}

// FakeSource generates names and cities with gofakeit.
type FakeSource struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewFakeSource returns a FakeSource. seed 0 seeds from crypto/rand.
func NewFakeSource(seed int64) *FakeSource {
	return &FakeSource{faker: gofakeit.New(seed)}
}

func (s *FakeSource) Next() codec.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return codec.Record{
		Name:        s.faker.FirstName(),
		Origin:      s.faker.City(),
		Destination: s.faker.City(),
	}
}

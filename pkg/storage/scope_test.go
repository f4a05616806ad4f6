package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closer struct {
	name  string
	order *[]string
	err   error
}

func (c *closer) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestUseReleasesInReverseOrder(t *testing.T) {

	var order []string

	err := Use(func(s *Scope) error {
		s.Add(&closer{name: "a", order: &order})
		s.Add(&closer{name: "b", order: &order})
		s.Add(&closer{name: "c", order: &order})
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestUseReleasesOnError(t *testing.T) {

	var order []string
	failure := errors.New("failure")

	err := Use(func(s *Scope) error {
		s.Add(&closer{name: "a", order: &order})
		s.Add(&closer{name: "b", order: &order, err: errors.New("close")})
		return failure
	})

	assert.True(t, errors.Is(err, failure))
	assert.Contains(t, err.Error(), "releasing resources: close")
	assert.Equal(t, []string{"b", "a"}, order)

	order = nil
	err = Use(func(s *Scope) error {
		s.Add(&closer{name: "a", order: &order})
		return failure
	})
	assert.Equal(t, failure, err)
}

func TestUseReportsCloseError(t *testing.T) {

	var order []string

	err := Use(func(s *Scope) error {
		s.Add(&closer{name: "a", order: &order, err: errors.New("close")})
		return nil
	})

	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, order)
}

package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocString(t *testing.T) {
	loc := Loc{File: "m.fx", Begin: Pos{Line: 2, Col: 4}, End: Pos{Line: 2, Col: 9}}
	assert.Equal(t, "m.fx:3:5", loc.String(), "locations print 1-based")
	assert.Equal(t, "<no location>", NoLoc.String())
}

func TestBagAccumulates(t *testing.T) {
	var b Bag
	assert.True(t, b.Empty())
	b.Addf(Type, NoLoc, "mismatch: %s", "int vs bool")
	b.Addf(PatternMatch, NoLoc, "unreachable case")
	require.Equal(t, 2, b.Len())
	assert.Contains(t, b.Errors()[0].Error(), "type error")
	assert.Contains(t, b.Errors()[1].Error(), "pattern match error")
	b.Reset()
	assert.True(t, b.Empty())
}

func TestBagWrapsForeignErrors(t *testing.T) {
	var b Bag
	b.Add(fmt.Errorf("disk on fire"))
	require.Equal(t, 1, b.Len())
	assert.Equal(t, Internal, b.Errors()[0].Kind)

	b.Add(nil)
	assert.Equal(t, 1, b.Len(), "nil errors are ignored")
}

func TestIsInternal(t *testing.T) {
	err := Internalf(NoLoc, "invariant violated: %s", "empty tuple")
	assert.True(t, IsInternal(err))

	wrapped := fmt.Errorf("pass failed: %w", err)
	assert.True(t, IsInternal(wrapped), "wrapping preserves the classification")

	assert.False(t, IsInternal(errors.New("plain")))
	userErr := &Error{Kind: Type, Loc: NoLoc, Msg: "boom"}
	assert.False(t, IsInternal(userErr))
}

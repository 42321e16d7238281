package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveCommitDecommitRelease(t *testing.T) {
	r, err := Reserve(4 * PageSize())
	require.NoError(t, err)
	require.True(t, r.Valid())
	defer Release(r)

	require.NoError(t, Commit(r, 0, PageSize()))

	addr, err := r.Sub(0, PageSize())
	require.NoError(t, err)
	b := sliceAt(addr, PageSize())
	b[0] = 0x42
	require.Equal(t, byte(0x42), b[0])

	require.NoError(t, Decommit(r, 0, PageSize()))
}

func TestReserveRoundsToGranularity(t *testing.T) {
	r, err := Reserve(1)
	require.NoError(t, err)
	defer Release(r)
	require.True(t, r.Size() >= AllocationGranularity())
	require.Equal(t, uintptr(0), r.Size()%AllocationGranularity())
}

func TestReserveZeroIsInvalid(t *testing.T) {
	_, err := Reserve(0)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestSubOutOfBounds(t *testing.T) {
	r, err := Reserve(PageSize())
	require.NoError(t, err)
	defer Release(r)

	_, err = r.Sub(0, r.Size()+1)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDecommitUncommittedIsNoop(t *testing.T) {
	r, err := Reserve(PageSize())
	require.NoError(t, err)
	defer Release(r)

	require.NoError(t, Decommit(r, 0, PageSize()))
}

func TestDecommitOutOfRangeIsSilentNoop(t *testing.T) {
	r, err := Reserve(PageSize())
	require.NoError(t, err)
	defer Release(r)

	require.NoError(t, Decommit(r, r.Size(), PageSize()))
	require.NoError(t, Decommit(r, 0, r.Size()*4))
}

func TestReleaseThenReuseAddressSpace(t *testing.T) {
	r1, err := Reserve(PageSize())
	require.NoError(t, err)
	require.NoError(t, Release(r1))

	r2, err := Reserve(PageSize())
	require.NoError(t, err)
	defer Release(r2)
	require.True(t, r2.Valid())
}

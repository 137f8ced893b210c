package gc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatpak/repo-summary/hash"
)

func digestFor(s string) hash.Digest { return hash.Sum([]byte(s)) }

type fakeDirectory struct {
	names   []string
	removed []string
}

func (f *fakeDirectory) List(ctx context.Context) ([]string, error) {
	return f.names, nil
}

func (f *fakeDirectory) Remove(ctx context.Context, name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func TestRunKeepsGzReferencedByCurrentIndex(t *testing.T) {
	kept := digestFor("kept")
	gone := digestFor("gone")
	dir := &fakeDirectory{names: []string{kept.Hex() + ".gz", gone.Hex() + ".gz"}}

	res, err := Run(context.Background(), dir, Input{
		Referenced: map[hash.Digest]struct{}{kept: {}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{gone.Hex() + ".gz"}, res.Removed)
	assert.Equal(t, []string{gone.Hex() + ".gz"}, dir.removed)
}

func TestRunKeepsGzReferencedOnlyViaHistory(t *testing.T) {
	historical := digestFor("historical")
	dir := &fakeDirectory{names: []string{historical.Hex() + ".gz"}}

	res, err := Run(context.Background(), dir, Input{
		Referenced: map[hash.Digest]struct{}{historical: {}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
}

func TestRunDeltaKeptOnlyWhenTargetGeneratedThisRun(t *testing.T) {
	from := digestFor("from")
	toGenerated := digestFor("to-generated")
	toHistorical := digestFor("to-historical")

	name1 := from.Hex() + "-" + toGenerated.Hex() + ".delta"
	name2 := from.Hex() + "-" + toHistorical.Hex() + ".delta"
	dir := &fakeDirectory{names: []string{name1, name2}}

	res, err := Run(context.Background(), dir, Input{
		GeneratedThisRun: map[hash.Digest]struct{}{toGenerated: {}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{name2}, res.Removed)
}

func TestRunIdxSigKeptForCurrentAndPreviousOnly(t *testing.T) {
	current := digestFor("current")
	previous := digestFor("previous")
	stale := digestFor("stale")

	dir := &fakeDirectory{names: []string{
		current.Hex() + ".idx.sig",
		previous.Hex() + ".idx.sig",
		stale.Hex() + ".idx.sig",
	}}

	res, err := Run(context.Background(), dir, Input{
		CurrentIndexDigest:  current,
		PreviousIndexDigest: previous,
		HasPrevious:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{stale.Hex() + ".idx.sig"}, res.Removed)
}

func TestRunIdxSigWithoutPreviousOnlyKeepsCurrent(t *testing.T) {
	current := digestFor("current")
	other := digestFor("other")

	dir := &fakeDirectory{names: []string{
		current.Hex() + ".idx.sig",
		other.Hex() + ".idx.sig",
	}}

	res, err := Run(context.Background(), dir, Input{
		CurrentIndexDigest: current,
		HasPrevious:        false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{other.Hex() + ".idx.sig"}, res.Removed)
}

func TestRunKeepsAndWarnsOnUnrecognizedFile(t *testing.T) {
	dir := &fakeDirectory{names: []string{"README.md", "lock"}}

	res, err := Run(context.Background(), dir, Input{})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.ElementsMatch(t, []string{"README.md", "lock"}, res.Warned)
}

func TestRunMalformedHexNamesAreUnrecognized(t *testing.T) {
	dir := &fakeDirectory{names: []string{"not-hex.gz", "nodash.delta", "zz.idx.sig"}}

	res, err := Run(context.Background(), dir, Input{})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Len(t, res.Warned, 3)
}

func TestRunRespectsCancellation(t *testing.T) {
	dir := &fakeDirectory{names: []string{digestFor("x").Hex() + ".gz"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, dir, Input{})
	assert.ErrorIs(t, err, context.Canceled)
}

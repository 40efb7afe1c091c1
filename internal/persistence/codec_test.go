package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcut/relcut/pkg/api"
)

func TestCodec_RoundTrip(t *testing.T) {
	in := api.ChangelogAudit{
		Path:         ".changes/1.9.0-rc1.md",
		BaseVersion:  "1.9.0",
		Prerelease:   "rc1",
		IsPrerelease: true,
	}

	data, err := EncodeValue(in)
	require.NoError(t, err)

	out, err := DecodeValue[api.ChangelogAudit](data)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestCodec_EmptyInputYieldsZeroValue(t *testing.T) {
	out, err := DecodeValue[[]api.CaseResult](nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/pubsub"
	"github.com/grouplab/inetwork/pkg/wire"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		spec      string
		wantName  string
		wantValue any
		wantErr   bool
	}{
		{"unit=C", "unit", "C", false},
		{"celsius=double:21.5", "celsius", 21.5, false},
		{"ratio=float:0.5", "ratio", float32(0.5), false},
		{"count=int:-7", "count", int32(-7), false},
		{"big=long:0x10", "big", int64(16), false},
		{"small=short:3", "small", int16(3), false},
		{"b=byte:255", "b", uint8(255), false},
		{"ok=bool:true", "ok", true, false},
		{"raw=hex:0102", "raw", []byte{1, 2}, false},
		{"gone=null", "gone", nil, false},
		{"url=http://example.com", "url", "http://example.com", false},
		{"count=int:many", "", nil, true},
		{"b=byte:256", "", nil, true},
		{"=x", "", nil, true},
		{"novalue", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, v, err := parseField(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("reading", true, []string{"celsius=double:21.5", "unit=C"})
	require.NoError(t, err)
	assert.True(t, msg.IsInternal())
	assert.Equal(t, 2, msg.Len())

	c, err := msg.GetDouble("celsius")
	require.NoError(t, err)
	assert.Equal(t, 21.5, c)

	_, err = buildMessage("dup", false, []string{"a=1", "a=2"})
	assert.ErrorIs(t, err, wire.ErrEncoding)
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := parseTemplate("reading:celsius=double, unit=string,tag")
	require.NoError(t, err)
	assert.Equal(t, "reading", tmpl.Name())
	assert.Equal(t, []pubsub.Field{
		pubsub.NewField("celsius", wire.Double),
		pubsub.NewField("unit", wire.String),
		pubsub.NewField("tag", wire.Unknown),
	}, tmpl.Fields())

	bare, err := parseTemplate("alert")
	require.NoError(t, err)
	assert.Empty(t, bare.Fields())

	_, err = parseTemplate(":a=int")
	assert.Error(t, err)
	_, err = parseTemplate("T:a=quaternion")
	assert.Error(t, err)
}

func TestSplitTarget(t *testing.T) {
	host, port, err := splitTarget("10.0.0.5:10001")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, 10001, port)

	host, _, err = splitTarget(":10003")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	for _, bad := range []string{"10.0.0.5", "host:port", "host:70000"} {
		_, _, err := splitTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestMergeResults(t *testing.T) {
	multicast := []discovery.Result{{Name: "echo", IP: "10.0.0.2", Port: 10001, Source: "multicast"}}
	mdns := []discovery.Result{
		{Name: "echo", IP: "10.0.0.2", Port: 10001, Source: "mdns"},
		{Name: "heap", IP: "10.0.0.3", Port: 10001, Source: "mdns"},
	}

	got := mergeResults(multicast, mdns)
	require.Len(t, got, 2)
	assert.Equal(t, "multicast", got[0].Source)
	assert.Equal(t, "heap", got[1].Name)
}

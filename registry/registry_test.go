package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lasku/types"
)

func TestMapType_TwoTierLookup(t *testing.T) {
	r := New()
	r.RegisterTypes("openstack", map[string]TypeMapping{
		"compute_instance": {CanonicalType: "server", ServiceName: types.ServiceCompute},
	})

	tests := []struct {
		name         string
		providerType string
		rawType      string
		wantType     string
		wantService  string
		wantOK       bool
	}{
		{"provider table hit", "openstack", "compute_instance", "server", types.ServiceCompute, true},
		{"wildcard fallback", "openstack", "volume", "volume", types.ServiceBlockStorage, true},
		{"unknown fallback", "openstack", "quantum_foo", "unknown", types.ServiceOther, false},
		{"unregistered provider uses wildcard", "aws", "instance", "server", types.ServiceCompute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.MapType(tt.providerType, tt.rawType)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantType, m.CanonicalType)
			assert.Equal(t, tt.wantService, m.ServiceName)
		})
	}
}

func TestMapStatus(t *testing.T) {
	r := New()
	r.RegisterStatuses("openstack", map[string]string{"build": types.StatusRunning})

	assert.Equal(t, types.StatusRunning, r.MapStatus("openstack", "build"))
	assert.Equal(t, types.StatusStopped, r.MapStatus("openstack", "shutoff"))
	// Unmapped statuses pass through unchanged.
	assert.Equal(t, "rescuing", r.MapStatus("openstack", "rescuing"))
}

func TestMap(t *testing.T) {
	r := New()
	res, err := r.Map(Input{
		ID:        "srv-1",
		Name:      "web-1",
		RawType:   "server",
		RawStatus: "running",
		Region:    "fi-hel1",
	}, "openstack")
	require.NoError(t, err)

	assert.Equal(t, "server", res.ResourceType)
	assert.Equal(t, types.ServiceCompute, res.ServiceName)
	assert.Equal(t, types.StatusRunning, res.Status)
	assert.Equal(t, "web-1", res.Tags.Name)
}

func TestMap_ValidationFailures(t *testing.T) {
	r := New()

	_, err := r.Map(Input{Name: "web-1", RawType: "server"}, "openstack")
	assert.ErrorContains(t, err, "id is empty")

	_, err = r.Map(Input{ID: "srv-1", RawType: "server"}, "openstack")
	assert.ErrorContains(t, err, "name is empty")
}

func TestMap_CustomProcessor(t *testing.T) {
	r := New()
	r.RegisterProcessor("openstack", func(_ string, res *types.ProviderResource) {
		res.Tags.SetExtra("mapped_by", "custom")
	})

	res, err := r.Map(Input{ID: "srv-1", Name: "web-1", RawType: "server"}, "openstack")
	require.NoError(t, err)
	assert.Equal(t, "custom", res.Tags.GetExtra("mapped_by"))

	// Processors are scoped per provider type.
	res, err = r.Map(Input{ID: "i-1", Name: "api", RawType: "instance"}, "aws")
	require.NoError(t, err)
	assert.Empty(t, res.Tags.GetExtra("mapped_by"))
}

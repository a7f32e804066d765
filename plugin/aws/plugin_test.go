package aws

import (
	"context"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/types"
)

type stubEC2 struct {
	instances []ec2types.Instance
	volumes   []ec2types.Volume
	err       error
}

func (s *stubEC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	matched := s.instances
	if len(params.InstanceIds) > 0 {
		matched = nil
		for _, instance := range s.instances {
			for _, id := range params.InstanceIds {
				if awssdk.ToString(instance.InstanceId) == id {
					matched = append(matched, instance)
				}
			}
		}
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: matched}},
	}, nil
}

func (s *stubEC2) DescribeVolumes(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ec2.DescribeVolumesOutput{Volumes: s.volumes}, nil
}

func runningInstance(id, name, instanceType string) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:   awssdk.String(id),
		InstanceType: ec2types.InstanceType(instanceType),
		State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		Tags: []ec2types.Tag{
			{Key: awssdk.String("Name"), Value: awssdk.String(name)},
		},
	}
}

func newTestPlugin(client EC2API) *Plugin {
	return New(plugin.Config{ProviderID: "aws-test", Region: "eu-north-1"}, client)
}

func TestSync_SynthesizedLedger(t *testing.T) {
	client := &stubEC2{
		instances: []ec2types.Instance{runningInstance("i-001", "worker", "t3.medium")},
	}

	res, err := newTestPlugin(client).Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.Len(t, res.Resources, 1)

	srv := res.Resources[0]
	assert.Equal(t, "server", srv.ResourceType)
	assert.Equal(t, types.StatusRunning, srv.Status)
	// t3.medium is in the static SKU table at 1.00/day.
	assert.InDelta(t, 1.00, srv.DailyCost, 1e-9)
	assert.Equal(t, types.CostSourceStaticTable, srv.Tags.CostSource,
		"synthesized costs must not claim provider billing confidence")
	assert.Equal(t, "true", srv.Tags.GetExtra("billing_synthesized"))
}

func TestSync_StoppedInstancesNotBilled(t *testing.T) {
	stopped := runningInstance("i-002", "idle", "t3.small")
	stopped.State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped}
	client := &stubEC2{
		instances: []ec2types.Instance{runningInstance("i-001", "worker", "t3.small"), stopped},
	}

	res, err := newTestPlugin(client).Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Resources, 1)
	assert.Equal(t, "i-001", res.Resources[0].ResourceID)
}

func TestSync_VolumeUnifiesIntoInstance(t *testing.T) {
	instance := runningInstance("i-001", "worker", "t3.medium")
	instance.BlockDeviceMappings = []ec2types.InstanceBlockDeviceMapping{{
		DeviceName: awssdk.String("/dev/xvda"),
		Ebs:        &ec2types.EbsInstanceBlockDevice{VolumeId: awssdk.String("vol-001")},
	}}

	created := time.Now().Add(-30 * 24 * time.Hour)
	client := &stubEC2{
		instances: []ec2types.Instance{instance},
		volumes: []ec2types.Volume{{
			VolumeId:   awssdk.String("vol-001"),
			Size:       awssdk.Int32(100),
			VolumeType: ec2types.VolumeTypeGp3,
			CreateTime: &created,
			Attachments: []ec2types.VolumeAttachment{{
				InstanceId: awssdk.String("i-001"),
			}},
		}},
	}

	res, err := newTestPlugin(client).Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Resources, 1, "attached volume folds into its instance")
	srv := res.Resources[0]
	assert.Equal(t, "i-001", srv.ResourceID)
	assert.Contains(t, srv.Tags.AttachedVolumes, "vol-001")
	// 100 GB gp3 at 0.0027/GB/day on top of the t3.medium rate.
	assert.InDelta(t, 1.00+0.27, srv.DailyCost, 1e-6)
}

func TestSync_DetachedOldVolumeIsOrphan(t *testing.T) {
	created := time.Now().Add(-60 * 24 * time.Hour)
	client := &stubEC2{
		volumes: []ec2types.Volume{{
			VolumeId:   awssdk.String("vol-stale"),
			Size:       awssdk.Int32(50),
			VolumeType: ec2types.VolumeTypeGp2,
			CreateTime: &created,
		}},
	}

	res, err := newTestPlugin(client).Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Resources, 1)
	vol := res.Resources[0]
	assert.Equal(t, "volume", vol.ResourceType)
	assert.True(t, vol.Tags.Orphan)
}

func TestTestConnection(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		result, err := newTestPlugin(&stubEC2{}).TestConnection(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("unreachable", func(t *testing.T) {
		result, err := newTestPlugin(&stubEC2{err: assert.AnError}).TestConnection(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Success)
	})
}

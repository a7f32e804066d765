package aws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/lasku/reconcile"
)

// inventoryFeed serves server detail from DescribeInstances. EC2 has no
// project scoping, so the hinted and exhaustive lookups are the same call.
type inventoryFeed struct {
	client EC2API
}

func (f *inventoryFeed) Probe(ctx context.Context) error {
	_, err := f.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		MaxResults: awssdk.Int32(5),
	})
	if err != nil {
		return &reconcile.AuthError{Op: "describe instances", Err: err}
	}
	return nil
}

func (f *inventoryFeed) FindServer(ctx context.Context, hint reconcile.LookupHint) (*reconcile.ServerDetail, error) {
	out, err := f.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{hint.ObjectID},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, &reconcile.TransientError{Op: "describe instances", Err: err}
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if awssdk.ToString(instance.InstanceId) == hint.ObjectID {
				return instanceDetail(instance), nil
			}
		}
	}
	return nil, nil
}

// ServerStats is unsupported without CloudWatch; the engine treats the
// error as a soft miss.
func (f *inventoryFeed) ServerStats(_ context.Context, _ string) (map[string]float64, error) {
	return nil, errors.New("server stats not available")
}

func instanceDetail(instance ec2types.Instance) *reconcile.ServerDetail {
	raw, _ := json.Marshal(instance)

	d := &reconcile.ServerDetail{
		ID:         awssdk.ToString(instance.InstanceId),
		Name:       nameTag(instance.Tags),
		Status:     string(stateName(instance.State)),
		FlavorName: string(instance.InstanceType),
		VCPUs:      vcpus(instance),
		PublicIP:   instance.PublicIpAddress != nil,
		Raw:        raw,
	}
	if instance.Placement != nil {
		d.Region = awssdk.ToString(instance.Placement.AvailabilityZone)
	}
	for _, mapping := range instance.BlockDeviceMappings {
		if mapping.Ebs == nil {
			continue
		}
		d.Attachments = append(d.Attachments, reconcile.VolumeAttachment{
			VolumeID: awssdk.ToString(mapping.Ebs.VolumeId),
			Device:   awssdk.ToString(mapping.DeviceName),
		})
	}
	return d
}

func stateName(state *ec2types.InstanceState) ec2types.InstanceStateName {
	if state == nil {
		return ec2types.InstanceStateName("unknown")
	}
	return state.Name
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.ErrorCode(), "NotFound")
	}
	return false
}

package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/pricing"
	"github.com/yairfalse/lasku/reconcile"
)

// syntheticLedger fakes a billing feed from EC2 inventory: each running
// instance and each volume becomes one daily-rated record priced by the
// estimator. The per-object estimate source is remembered so the final
// resources can be re-tagged honestly.
type syntheticLedger struct {
	client    EC2API
	region    string
	estimator *pricing.Estimator
	logger    zerolog.Logger

	mu        sync.Mutex
	sources   map[string]string
	lastTotal float64
}

func (f *syntheticLedger) Pull(ctx context.Context, _ billing.Query) ([]billing.Record, error) {
	var records []billing.Record
	sources := make(map[string]string)
	total := 0.0

	instanceRecords, err := f.pullInstances(ctx, sources)
	if err != nil {
		return nil, err
	}
	records = append(records, instanceRecords...)

	volumeRecords, err := f.pullVolumes(ctx, sources)
	if err != nil {
		return nil, err
	}
	records = append(records, volumeRecords...)

	for _, r := range records {
		total += r.Value
	}

	f.mu.Lock()
	f.sources = sources
	f.lastTotal = total
	f.mu.Unlock()
	return records, nil
}

// AccountDailyRate returns the synthesized total. There is no independent
// account rate without a real ledger, so totals validation is a
// self-consistency check only.
func (f *syntheticLedger) AccountDailyRate(_ context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTotal, nil
}

func (f *syntheticLedger) pullInstances(ctx context.Context, sources map[string]string) ([]billing.Record, error) {
	var records []billing.Record

	paginator := ec2.NewDescribeInstancesPaginator(f.client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				if skipState(instance.State) {
					continue
				}
				records = append(records, f.instanceRecord(instance, sources))
			}
		}
	}
	return records, nil
}

// skipState drops instances that incur no compute cost. Their volumes
// still appear through pullVolumes.
func skipState(state *ec2types.InstanceState) bool {
	if state == nil {
		return true
	}
	switch state.Name {
	case ec2types.InstanceStateNameRunning, ec2types.InstanceStateNamePending:
		return false
	default:
		return true
	}
}

func (f *syntheticLedger) instanceRecord(instance ec2types.Instance, sources map[string]string) billing.Record {
	id := awssdk.ToString(instance.InstanceId)
	instanceType := string(instance.InstanceType)

	est := f.estimator.Estimate(pricing.Request{
		Platform: ProviderType,
		SKU:      instanceType,
		VCPUs:    vcpus(instance),
		PublicIP: instance.PublicIpAddress != nil,
	})
	sources[id] = est.Source

	return billing.Record{
		Object: billing.Object{
			ID:     id,
			Name:   nameTag(instance.Tags),
			Type:   "server",
			Region: f.region,
		},
		Metric: billing.Metric{ID: "server_core"},
		Value:  est.DailyCost,
		Period: pricing.PeriodDaily,
		Attributes: map[string]string{
			"instance_type": instanceType,
		},
	}
}

func (f *syntheticLedger) pullVolumes(ctx context.Context, sources map[string]string) ([]billing.Record, error) {
	var records []billing.Record

	paginator := ec2.NewDescribeVolumesPaginator(f.client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, volume := range page.Volumes {
			records = append(records, f.volumeRecord(volume, sources))
		}
	}
	return records, nil
}

func (f *syntheticLedger) volumeRecord(volume ec2types.Volume, sources map[string]string) billing.Record {
	id := awssdk.ToString(volume.VolumeId)
	est := f.estimator.Estimate(pricing.Request{
		Platform:    ProviderType,
		StorageGB:   int(awssdk.ToInt32(volume.Size)),
		StorageType: string(volume.VolumeType),
	})
	sources[id] = est.Source

	attrs := map[string]string{}
	if volume.CreateTime != nil {
		attrs["created_at"] = volume.CreateTime.UTC().Format(time.RFC3339)
	}
	for _, att := range volume.Attachments {
		if att.InstanceId != nil {
			attrs["server_id"] = awssdk.ToString(att.InstanceId)
			break
		}
	}

	return billing.Record{
		Object: billing.Object{
			ID:     id,
			Name:   nameTag(volume.Tags),
			Type:   "volume",
			Region: f.region,
		},
		Metric:     billing.Metric{ID: "volume_gb"},
		Value:      est.DailyCost,
		Period:     pricing.PeriodDaily,
		Attributes: attrs,
	}
}

// retagSources overwrites each resource's cost source with the estimate
// source recorded during synthesis; the ledger itself was estimated, so
// provider_billing would overstate confidence.
func (f *syntheticLedger) retagSources(res *reconcile.Result) {
	f.mu.Lock()
	sources := f.sources
	f.mu.Unlock()

	for i := range res.Resources {
		r := &res.Resources[i]
		if source, ok := sources[r.ResourceID]; ok {
			r.Tags.CostSource = source
		}
		r.Tags.SetExtra("billing_synthesized", "true")
	}
}

func nameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if awssdk.ToString(tag.Key) == "Name" {
			return awssdk.ToString(tag.Value)
		}
	}
	return ""
}

func vcpus(instance ec2types.Instance) int {
	if instance.CpuOptions == nil {
		return 0
	}
	cores := int(awssdk.ToInt32(instance.CpuOptions.CoreCount))
	threads := int(awssdk.ToInt32(instance.CpuOptions.ThreadsPerCore))
	if threads == 0 {
		threads = 1
	}
	return cores * threads
}

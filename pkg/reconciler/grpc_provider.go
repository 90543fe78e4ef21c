package reconciler

import (
	"context"
	"fmt"

	fleetv1 "github.com/nexops/operator/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCProvider implements InfraProvider by calling an external fleet
// control service over gRPC — the Go shape of the reference
// RailwayProvider's cloud-replica API calls.
type GRPCProvider struct {
	conn   *grpc.ClientConn
	client fleetv1.FleetServiceClient
}

// NewGRPCProvider dials addr. Uses insecure transport; the fleet
// service is expected to run inside the same cluster as the
// reconciler.
func NewGRPCProvider(addr string) (*GRPCProvider, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("reconciler: dial fleet service at %s: %w", addr, err)
	}
	return &GRPCProvider{
		conn:   conn,
		client: fleetv1.NewFleetServiceClient(conn),
	}, nil
}

func (p *GRPCProvider) GetWorkerCount(ctx context.Context, poolName string) (int, error) {
	reply, err := p.client.GetWorkerCount(ctx, &fleetv1.GetWorkerCountRequest{PoolName: poolName})
	if err != nil {
		return 0, fmt.Errorf("reconciler: get worker count for %s: %w", poolName, err)
	}
	return int(reply.Count), nil
}

func (p *GRPCProvider) SetWorkerCount(ctx context.Context, poolName string, count int) (bool, error) {
	reply, err := p.client.SetWorkerCount(ctx, &fleetv1.SetWorkerCountRequest{
		PoolName: poolName,
		Count:    int32(count),
	})
	if err != nil {
		return false, fmt.Errorf("reconciler: set worker count for %s: %w", poolName, err)
	}
	return reply.Applied, nil
}

// Close releases the gRPC connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

// NoopProvider is a development fallback that reports success without
// touching any real infrastructure, mirroring the reference's base
// InfraProvider used when no Railway credentials are configured.
type NoopProvider struct{}

func (NoopProvider) GetWorkerCount(ctx context.Context, poolName string) (int, error) {
	return 1, nil
}

func (NoopProvider) SetWorkerCount(ctx context.Context, poolName string, count int) (bool, error) {
	return true, nil
}

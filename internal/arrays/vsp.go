package arrays

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/systmms/sanbridge/internal/arrays/vsp"
	"github.com/systmms/sanbridge/internal/session"
)

// VendorVSP is the Hitachi VSP vendor name.
const VendorVSP = "hitachi-vsp"

// NewVSPArray creates a Hitachi VSP array.
func NewVSPArray(spec Spec) (*Array, error) {
	mgr, err := session.New(vsp.New(spec.Models), spec.sessionConfig())
	if err != nil {
		return nil, err
	}
	c := vsp.NewClient(mgr)

	return newArray(spec.Name, VendorVSP, mgr, "storage", []Resource{
		{Name: "system", Description: "Storage systems visible to the management server", Fetch: noArgs(c.SystemInfo)},
		{Name: "firmware", Description: "Microcode version", Fetch: noArgs(func(ctx context.Context) (json.RawMessage, error) {
			v, err := c.FirmwareVersion(ctx)
			if err != nil || v == "" {
				return nil, err
			}
			return json.Marshal(map[string]string{"dkcMicroVersion": v})
		})},
		{Name: "storage", Description: "Storage system details", Fetch: noArgs(c.Storage)},
		{Name: "capacity", Description: "Total capacities", Fetch: noArgs(c.Capacity)},
		{Name: "pools", Description: "Pools", Fetch: noArgs(c.Pools)},
		{
			Name:        "volumes",
			Description: "Logical devices, paged",
			Optional:    []string{"head-ldev-id", "count"},
			Fetch: func(ctx context.Context, args []string) (json.RawMessage, error) {
				head, count := 0, vsp.LdevsPerRequest
				var err error
				if len(args) > 0 {
					if head, err = strconv.Atoi(args[0]); err != nil || head < 0 {
						return nil, fmt.Errorf("invalid head-ldev-id %q", args[0])
					}
				}
				if len(args) > 1 {
					if count, err = strconv.Atoi(args[1]); err != nil || count <= 0 {
						return nil, fmt.Errorf("invalid count %q", args[1])
					}
				}
				return c.Volumes(ctx, head, count)
			},
		},
		{Name: "controllers", Description: "Controllers and other components", Fetch: noArgs(c.Controllers)},
		{Name: "disks", Description: "Drives", Fetch: noArgs(c.Disks)},
		{Name: "ports", Description: "Ports", Fetch: noArgs(c.Ports)},
		{Name: "port", Description: "One port", Args: []string{"port-id"}, Fetch: oneArg(c.PortDetail)},
	}), nil
}

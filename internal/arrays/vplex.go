package arrays

import (
	"github.com/systmms/sanbridge/internal/arrays/vplex"
	"github.com/systmms/sanbridge/internal/session"
)

// VendorVPLEX is the Dell VPLEX vendor name.
const VendorVPLEX = "dell-vplex"

// NewVPLEXArray creates a Dell VPLEX array.
func NewVPLEXArray(spec Spec) (*Array, error) {
	mgr, err := session.New(vplex.New(), spec.sessionConfig())
	if err != nil {
		return nil, err
	}
	c := vplex.NewClient(mgr)

	cluster := []string{"cluster"}

	return newArray(spec.Name, VendorVPLEX, mgr, "clusters", []Resource{
		{Name: "clusters", Description: "Clusters", Fetch: noArgs(c.Clusters)},
		{Name: "cluster", Description: "One cluster", Args: cluster, Fetch: oneArg(c.Cluster)},
		{Name: "virtual-volumes", Description: "Virtual volumes of a cluster", Args: cluster, Fetch: oneArg(c.VirtualVolumes)},
		{Name: "virtual-volume", Description: "One virtual volume", Args: []string{"cluster", "volume"}, Fetch: twoArgs(c.VirtualVolume)},
		{Name: "devices", Description: "Devices of a cluster", Args: cluster, Fetch: oneArg(c.Devices)},
		{Name: "device", Description: "One device", Args: []string{"cluster", "device"}, Fetch: twoArgs(c.Device)},
		{Name: "health-check", Description: "health-check -l", Fetch: noArgs(c.HealthCheck)},
		{Name: "storage-volume-summary", Description: "storage-volume summary", Args: cluster, Fetch: oneArg(c.StorageVolumeSummary)},
		{Name: "device-summary", Description: "local-device summary", Args: cluster, Fetch: oneArg(c.DeviceSummary)},
		{Name: "virtual-volume-summary", Description: "virtual-volume summary", Args: cluster, Fetch: oneArg(c.VirtualVolumeSummary)},
		{Name: "version", Description: "version -a --verbose", Fetch: noArgs(c.Version)},
		{Name: "engine-directors", Description: "Engine directors", Fetch: noArgs(c.EngineDirectors)},
		{Name: "export-ports", Description: "Export ports", Fetch: noArgs(c.ExportPorts)},
		{Name: "hardware-ports", Description: "Hardware ports", Fetch: noArgs(c.HardwarePorts)},
	}), nil
}

package audio

import (
	"context"
	"reflect"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromListDefaultInput(t *testing.T) {
	devices := []Device{
		{ID: "yeti", Description: "Blue Yeti Nano", Available: true, Default: true},
		{ID: "webcam", Description: "Logitech C920 Analog", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "default", "default")
	require.NoError(t, err)
	require.Equal(t, "yeti", selection.Device.ID)
	require.Empty(t, selection.Warning)
	require.False(t, selection.Fallback)
}

func TestSelectDeviceFromListMatchesByDescription(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.pci-0000", Description: "Built-in Audio Analog", Available: true, Default: true},
		{ID: "alsa_input.usb-blue", Description: "Blue Yeti Nano", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "yeti", "default")
	require.NoError(t, err)
	require.Equal(t, "alsa_input.usb-blue", selection.Device.ID)
}

func TestSelectDeviceFromListUnavailablePrimaryUsesFallback(t *testing.T) {
	devices := []Device{
		{ID: "yeti", Description: "Blue Yeti Nano", Default: true},
		{ID: "headset", Description: "Jabra Evolve2", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "yeti", "headset")
	require.NoError(t, err)
	require.Equal(t, "headset", selection.Device.ID)
	require.Contains(t, selection.Warning, "unavailable")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListMutedPrimaryFallsBackToDefault(t *testing.T) {
	devices := []Device{
		{ID: "builtin", Description: "Built-in Audio Analog", Available: true, Default: true},
		{ID: "yeti", Description: "Blue Yeti Nano", Available: true, Muted: true},
	}

	selection, err := selectDeviceFromList(devices, "yeti", "")
	require.NoError(t, err)
	require.Equal(t, "builtin", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
}

func TestSelectDeviceFromListFailsWhenOnlyDeviceMuted(t *testing.T) {
	devices := []Device{
		{ID: "yeti", Description: "Blue Yeti Nano", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "default", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "muted")
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "yeti", Description: "Blue Yeti Nano", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "snowball", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")
}

func TestSelectDeviceFromListEmptyList(t *testing.T) {
	_, err := selectDeviceFromList(nil, "default", "default")
	require.Error(t, err)
}

func TestDeviceMatches(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-blue_yeti", Description: "Blue Yeti Nano"}
	require.True(t, deviceMatches(dev, "yeti"))
	require.True(t, deviceMatches(dev, "blue yeti nano"))
	require.False(t, deviceMatches(dev, "snowball"))
	require.False(t, deviceMatches(dev, ""))
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/aquavoice-no-such-pulse")
	_, err := ListDevices(context.Background())
	require.Error(t, err)
}

func TestSelectDeviceFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/aquavoice-no-such-pulse")
	_, err := SelectDevice(context.Background(), "default", "default")
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(7)", sourceStateString(7))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{}))

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "analog-input-mic"}
	setSourcePorts(t, available, []sourcePort{{name: "analog-input-mic", available: 2}})
	require.True(t, sourceAvailable(available))

	unplugged := &pulseproto.GetSourceInfoReply{ActivePortName: "analog-input-mic"}
	setSourcePorts(t, unplugged, []sourcePort{{name: "analog-input-mic", available: 1}})
	require.False(t, sourceAvailable(unplugged))
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))

	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}

	reflect.ValueOf(reply).Elem().FieldByName("Ports").Set(sliceValue)
}

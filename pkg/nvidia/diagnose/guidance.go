// pkg/nvidia/diagnose/guidance.go

package diagnose

import "fmt"

// manualSteps is the fixed operator guidance emitted whenever automatic
// repair cannot finish the job. The order is part of the contract.
func manualSteps(driverPackage, competing string) []string {
	return []string{
		fmt.Sprintf("Reinstall the driver package: sudo apt-get install --reinstall %s (or dnf reinstall on RHEL-family hosts)", driverPackage),
		fmt.Sprintf("Remove conflicting packages that pull in %s or older NVIDIA drivers, e.g. xserver-xorg-video-nouveau", competing),
		"Rebuild the kernel module for the running kernel: sudo dkms autoinstall",
		"Inspect the kernel and driver logs: sudo dmesg | grep -i -E 'nvidia|nouveau' and journalctl -b -k",
		"Power off, reseat the GPU and its power connectors, and check it is enabled in firmware settings",
	}
}

const (
	guidanceSecureBoot = "Secure Boot is enabled: unsigned NVIDIA modules will not load. Enroll a MOK key (sudo mokutil --import) or disable Secure Boot in firmware"
	guidanceReboot     = "The competing driver is still bound after the display service restart: reboot to finish switching drivers"
	guidanceNoHardware = "No NVIDIA device was found on the PCI bus (lspci -nn | grep -i nvidia shows nothing)"
)

func guidanceNoCapability(command, driverPackage string) string {
	return fmt.Sprintf("%s is not installed or not on PATH: install %s, which provides it", command, driverPackage)
}

func guidanceRecentInstall(entry string) string {
	return "Last driver package transaction: " + entry
}

//go:build windows

package endpoint

import "golang.org/x/sys/windows"

func platformInit() error {
	var data windows.WSAData
	return windows.WSAStartup(uint32(0x0202), &data)
}

func platformCleanup() error {
	return windows.WSACleanup()
}

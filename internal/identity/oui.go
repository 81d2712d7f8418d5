package identity

// ouiEntry pairs a vendor name with the 3-byte organizationally unique
// identifier prefix it was assigned.
type ouiEntry struct {
	vendor string
	prefix [3]byte
}

// ouiDatabase is a sample of real-world vendor OUI prefixes used to make
// generated MAC addresses look like plausible hardware rather than random
// bytes. None of these set the locally-administered bit.
var ouiDatabase = []ouiEntry{
	{"Dell", [3]byte{0x00, 0x14, 0x22}},
	{"Dell", [3]byte{0x24, 0xB6, 0xFD}},
	{"HP", [3]byte{0x00, 0x1A, 0x4B}},
	{"HP", [3]byte{0x3C, 0xD9, 0x2B}},
	{"HPE", [3]byte{0x94, 0x57, 0xA5}},
	{"Intel", [3]byte{0x00, 0x1B, 0x21}},
	{"Intel", [3]byte{0x68, 0x05, 0xCA}},
	{"Intel", [3]byte{0xA4, 0xBF, 0x01}},
	{"Lenovo", [3]byte{0x00, 0x06, 0x1B}},
	{"Lenovo", [3]byte{0x50, 0x7B, 0x9D}},
	{"Realtek", [3]byte{0x00, 0xE0, 0x4C}},
	{"Realtek", [3]byte{0x00, 0x0A, 0xCD}},
	{"Cisco", [3]byte{0x00, 0x1A, 0xA1}},
	{"Cisco", [3]byte{0x00, 0x26, 0x0B}},
	{"Cisco", [3]byte{0xF4, 0xCF, 0xE2}},
	{"Apple", [3]byte{0x00, 0x1F, 0xF3}},
	{"Apple", [3]byte{0xA8, 0x51, 0xAB}},
	{"Apple", [3]byte{0xDC, 0xA4, 0xCA}},
	{"Samsung", [3]byte{0x00, 0x16, 0x32}},
	{"Samsung", [3]byte{0x78, 0x47, 0x1D}},
	{"Samsung", [3]byte{0xAC, 0x5A, 0x14}},
	{"TP-Link", [3]byte{0x00, 0x27, 0x19}},
	{"TP-Link", [3]byte{0x50, 0xC7, 0xBF}},
	{"ASUS", [3]byte{0x00, 0x1A, 0x92}},
	{"ASUS", [3]byte{0x2C, 0x56, 0xDC}},
	{"Netgear", [3]byte{0x00, 0x1E, 0x2A}},
	{"Netgear", [3]byte{0xA0, 0x04, 0x60}},
	{"D-Link", [3]byte{0x00, 0x1C, 0xF0}},
	{"D-Link", [3]byte{0xB8, 0xA3, 0x86}},
	{"Juniper", [3]byte{0x00, 0x26, 0x88}},
	{"Juniper", [3]byte{0xF0, 0x1C, 0x2D}},
	{"Aruba", [3]byte{0x00, 0x0B, 0x86}},
	{"Aruba", [3]byte{0x24, 0xDE, 0xC6}},
	{"Ubiquiti", [3]byte{0x04, 0x18, 0xD6}},
	{"Ubiquiti", [3]byte{0xFC, 0xEC, 0xDA}},
	{"Microsoft", [3]byte{0x00, 0x15, 0x5D}},
	{"Microsoft", [3]byte{0x00, 0x50, 0xF2}},
	{"VMware", [3]byte{0x00, 0x0C, 0x29}},
	{"VMware", [3]byte{0x00, 0x50, 0x56}},
	{"Broadcom", [3]byte{0x00, 0x10, 0x18}},
	{"Broadcom", [3]byte{0xD8, 0x38, 0xFC}},
	{"Qualcomm", [3]byte{0x00, 0x03, 0x7F}},
	{"Qualcomm", [3]byte{0x9C, 0xFC, 0x01}},
	{"Huawei", [3]byte{0x00, 0x18, 0x82}},
	{"Huawei", [3]byte{0xE0, 0x24, 0x7F}},
	{"Supermicro", [3]byte{0x00, 0x25, 0x90}},
	{"Supermicro", [3]byte{0xAC, 0x1F, 0x6B}},
	{"Mellanox", [3]byte{0x00, 0x02, 0xC9}},
	{"Arista", [3]byte{0x00, 0x1C, 0x73}},
	{"Fortinet", [3]byte{0x00, 0x09, 0x0F}},
}

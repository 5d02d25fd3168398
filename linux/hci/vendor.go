package hci

import (
	"github.com/rigado/blehci/linux/hci/cmd"
)

// SendVendorCommand sends c and waits for its completion, returning the return parameters
// that follow the status.
func (h *HCI) SendVendorCommand(c *cmd.Vendor) ([]byte, error) {
	var rp cmd.VendorRP
	if err := h.Send(c, &rp); err != nil {
		return nil, err
	}
	h.logger.Debugf("%v: % X", c, rp.Data)
	return rp.Data, nil
}

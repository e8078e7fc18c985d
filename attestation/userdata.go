package attestation

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// user_data is free-form, but every enclave in this fleet embeds a JSON
// object carrying its wallet address (key varies by firmware generation).
var addressKeys = []string{"eth_addr", "eth_address", "address"}

// applyUserData surfaces the user_data field: printable bytes as text with a
// JSON parse attempt, anything else as hex. When the JSON embeds an Ethereum
// address it is normalized to checksummed form.
func applyUserData(doc *Document, raw []byte) {
	doc.UserData = classifyBytes(raw)
	if !isPrintableASCII(raw) {
		return
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return
	}
	doc.UserDataJSON = obj

	for _, key := range addressKeys {
		if v, ok := obj[key].(string); ok && common.IsHexAddress(v) {
			doc.EnclaveAddress = common.HexToAddress(v).Hex()
			return
		}
	}
}

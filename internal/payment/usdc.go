package payment

// usdcAssetByNetwork is the fixed network -> USDC contract address table of
// spec §6. Unknown networks fall back to base-sepolia.
var usdcAssetByNetwork = map[Network]string{
	NetworkBaseSepolia: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	NetworkBase:        "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	NetworkEthereum:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	NetworkOptimism:    "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
	NetworkPolygon:     "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
}

// USDCAddress returns the per-network USDC contract address, defaulting to
// base-sepolia for unknown networks per spec §6.
func USDCAddress(network Network) string {
	if addr, ok := usdcAssetByNetwork[network]; ok {
		return addr
	}
	return usdcAssetByNetwork[NetworkBaseSepolia]
}

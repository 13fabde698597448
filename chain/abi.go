package chain

// nodeVaultABI covers the read-only surface of the NodeVault contract.
const nodeVaultABI = `[
	{"type":"function","name":"getTotalSupplied","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTotalDebt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getUtilizationRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCurrentBorrowAPY","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCurrentSupplyAPY","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"maxLTV","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"LIQUIDATION_THRESHOLD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getJumpRateModel","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
	{"type":"function","name":"supplyIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"borrowIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getLenderPosition","stateMutability":"view",
		"inputs":[{"name":"lender","type":"address"}],
		"outputs":[{"name":"position","type":"tuple","components":[
			{"name":"totalSupplied","type":"uint256"},
			{"name":"accruedInterest","type":"uint256"},
			{"name":"lastSupplyTime","type":"uint256"},
			{"name":"supplyIndexCheckpoint","type":"uint256"}]}]},
	{"type":"function","name":"getBorrowerPosition","stateMutability":"view",
		"inputs":[{"name":"user","type":"address"}],
		"outputs":[{"name":"position","type":"tuple","components":[
			{"name":"totalBorrowed","type":"uint256"},
			{"name":"accruedInterest","type":"uint256"},
			{"name":"lastBorrowTime","type":"uint256"},
			{"name":"borrowIndexCheckpoint","type":"uint256"},
			{"name":"depositedNodes","type":"tuple[]","components":[
				{"name":"nodeId","type":"uint256"},
				{"name":"nodeType","type":"uint256"}]}]}]},
	{"type":"function","name":"getMaxBorrowAmount","stateMutability":"view",
		"inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// tokenABI covers the ERC-20 reads used for the WOORT asset.
const tokenABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// oortNodeABI covers the node registry of the OORT network.
const oortNodeABI = `[
	{"type":"function","name":"getOwnerNodeList","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"nodeDataInfo","stateMutability":"view",
		"inputs":[{"name":"nodeAddress","type":"address"}],
		"outputs":[{"name":"","type":"tuple","components":[
			{"name":"ownerAddress","type":"address"},
			{"name":"nodeAddress","type":"address"},
			{"name":"pledge","type":"uint256"},
			{"name":"maxPledge","type":"uint256"},
			{"name":"endTime","type":"uint256"},
			{"name":"lockedRewards","type":"uint256"},
			{"name":"balance","type":"uint256"},
			{"name":"nodeType","type":"uint256"},
			{"name":"lockTime","type":"uint256"},
			{"name":"totalRewards","type":"uint256"},
			{"name":"nodeStatus","type":"bool"}]}]}
]`

package subgraph

import (
	"fmt"
	"strings"
)

const protocolQuery = `query GetProtocolStats {
  protocol(id: "1") {
    totalLiquidity
    totalDebt
    totalCollateralValue
    totalNodesDeposited
    supplyAPY
    borrowAPY
    utilizationRate
    totalUsers
    totalLenders
    totalBorrowers
    lastUpdateTimestamp
  }
}`

const userFields = `
    address
    totalSupplied
    totalSupplyInterest
    totalBorrowed
    totalBorrowInterest
    collateralValue
    depositedNodesCount
    isLender
    isBorrower
    firstInteractionTimestamp
    lastInteractionTimestamp`

var userPositionQuery = `query GetUserPosition($address: ID!) {
  user(id: $address) {` + userFields + `
  }
}`

const dailySnapshotsQuery = `query GetDailySnapshots($days: Int!) {
  dailySnapshots(first: $days, orderBy: date, orderDirection: desc) {
    id
    date
    totalLiquidity
    totalDebt
    totalCollateralValue
    supplyAPY
    borrowAPY
    utilizationRate
    activeUsers
    activeLenders
    activeBorrowers
    totalNodesDeposited
    suppliesCount
    withdrawalsCount
    borrowsCount
    repaysCount
    nodeDepositsCount
    nodeWithdrawalsCount
    supplyVolume
    withdrawVolume
    borrowVolume
    repayVolume
  }
}`

const rateSnapshotFields = `
    id
    timestamp
    blockNumber
    supplyAPY
    borrowAPY
    utilizationRate
    borrowIndex
    supplyIndex
    totalLiquidity
    totalDebt`

var rateSnapshotsQuery = `query GetInterestRateHistory($first: Int!) {
  interestRateSnapshots(first: $first, orderBy: timestamp, orderDirection: desc) {` + rateSnapshotFields + `
  }
}`

var rateSnapshotsSinceQuery = `query GetInterestRateSnapshots($startTime: Int!, $first: Int!, $skip: Int!) {
  interestRateSnapshots(
    where: { timestamp_gte: $startTime }
    first: $first
    skip: $skip
    orderBy: timestamp
    orderDirection: asc
  ) {` + rateSnapshotFields + `
  }
}`

// eventFields lists the selection for each event collection. Node
// withdrawals also select assetValue, which the indexer fills when known.
var eventFields = map[string]string{
	collectionSupply:         "amount",
	collectionWithdraw:       "amount principalAmount interestAmount",
	collectionBorrow:         "amount",
	collectionRepay:          "amount",
	collectionNodeDeposit:    "nodeId nodeType assetValue",
	collectionNodeWithdrawal: "nodeId nodeType assetValue",
}

func nestedName(collection string) string {
	switch collection {
	case collectionNodeDeposit:
		return nestedCollectionNodeDeposit
	case collectionNodeWithdrawal:
		return nestedCollectionNodeWithdraws
	default:
		return collection
	}
}

// selection renders the fields of one event collection. withUser adds the
// user reference for top-level collections.
func selection(collection string, withUser bool) string {
	fields := []string{"id"}
	if withUser {
		fields = append(fields, "user { address }")
	}
	fields = append(fields, strings.Fields(eventFields[collection])...)
	fields = append(fields, "timestamp", "blockNumber", "transactionHash")
	return strings.Join(fields, "\n      ")
}

// timelineQuery selects a user's events both through the user entity and
// directly by user filter, since the entity can lag behind the collections.
func timelineQuery() string {
	var b strings.Builder
	b.WriteString("query GetUserTimeline($address: ID!, $user: String!, $first: Int!) {\n  user(id: $address) {")
	b.WriteString(userFields)
	for _, collection := range topLevelCollections {
		fmt.Fprintf(&b, "\n    %s(first: $first, orderBy: timestamp, orderDirection: desc) {\n      %s\n    }",
			nestedName(collection), selection(collection, false))
	}
	b.WriteString("\n  }")
	for _, collection := range topLevelCollections {
		fmt.Fprintf(&b, "\n  %s(where: { user: $user }, first: $first, orderBy: timestamp, orderDirection: desc) {\n      %s\n  }",
			collection, selection(collection, false))
	}
	b.WriteString("\n}")
	return b.String()
}

// eventsSinceQuery pages one top-level collection forward from startTime.
func eventsSinceQuery(collection string) string {
	return fmt.Sprintf(`query GetEventsSince($startTime: Int!, $first: Int!, $skip: Int!) {
  %s(
    where: { timestamp_gte: $startTime }
    first: $first
    skip: $skip
    orderBy: timestamp
    orderDirection: asc
  ) {
      %s
  }
}`, collection, selection(collection, true))
}

package state

var (
	bankAccountPrefix    = []byte("bank/account/")
	earningsPrefix       = []byte("earnings/balance/")
	tipPoolPrefix        = []byte("tips/pool/")
	tipPledgePrefix      = []byte("tips/pledge/")
	tipMinimumPrefix     = []byte("tips/minimum/")
	accessPricePrefix    = []byte("access/price/")
	accessPurchasePrefix = []byte("access/purchase/")
)

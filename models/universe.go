package models

// DefaultUniverse is the fixed watchlist scanned each cycle: liquid, actively
// traded US ETFs. The order is the iteration order of the scan loop and the
// tie-break order of equally dated result rows.
var DefaultUniverse = []string{
	"SPY", // SPDR S&P 500 ETF Trust
	"QQQ", // Invesco QQQ Trust
	"IWM", // iShares Russell 2000 ETF
	"DIA", // SPDR Dow Jones Industrial Average ETF
	"VOO", // Vanguard S&P 500 ETF
	"XLF", // Financial Select Sector SPDR Fund
	"XLE", // Energy Select Sector SPDR Fund
	"XLK", // Technology Select Sector SPDR Fund
	"EEM", // iShares MSCI Emerging Markets ETF
	"GLD", // SPDR Gold Trust
	"VEA", // Vanguard FTSE Developed Markets ETF
	"SMH", // VanEck Semiconductor ETF
	"XLV", // Health Care Select Sector SPDR Fund
	"XLI", // Industrial Select Sector SPDR Fund
	"XLP", // Consumer Staples Select Sector SPDR Fund
}

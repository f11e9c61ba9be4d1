package bingo

// FreeSpace is the fixed center cell.
const FreeSpace = "Free\nspace"

// DefaultFields is the stock field pool.
var DefaultFields = []string{
	// map styles
	"Tech of the Day",
	"Nascar\nof the Day",
	"Ice of the Day",
	"Dirt of the Day",
	"Grass\nof the Day",
	"RPG of the Day",
	"FullSpeed\nof the Day",
	// map characteristics
	"Scenery\nof the Day",
	"Cut of the Day",
	"Fog of the Day",
	"Restart\nsimulator",
	"Upside-down\ntrees",
	"RGB lighting",
	"Poor lighting",
	"Night map",
	"Map filled\nwith custom\nscenery items",
	"Map\nwithout any\ncustom items",
	"Scenery\nin the middle\nof the road",
	"Texture mod",
	"Map outside\nof the stadium",
	"Fragile block",
	"No-steer block",
	"Slowmo block",
	"Reactor jump\nwith a zoop",
	"Driving\nupside-down",
	"Non-\nrespawnable\ncheckpoint",
	"Bug slide",
	"Speed slides",
	"Jump into\nthe finish",
	// author
	"Author's\nfirst TOTD",
	"More than one\nTOTD by\nthe same author",
	"Map by a\nTMGL player",
	"Map by\nEverios96",
	"Map by htimh",
	"Map by\nRexasaurus13",
	"Map by priez",
	"Map by\nbartsimpson94",
	// times
	"Author time\nover a minute",
	"Author time\nunder 30s",
	"Author medal\nthat's insanely\ndifficult",
	"Free\nAuthor medal",
	"WR-level GPS",
	"Bronze-level\nGPS",
	// technical things
	"Cup of the Day\nbreaks",
	"Super-laggy\nmap",
	"Map with\nthe Openplanet\nsound bug",
	"Fake WR times\ndue to\ncheckpoint bug",
}

package app

const (
	Name               = "meshgo"
	ConfigFilename     = "config.json"
	DBFilename         = "app.db"
	LogFilename        = "app.log"
	MapTilesDir        = "map_tiles"
	DefaultIPPort      = 4403
	RecentMessagesLoad = 200
)

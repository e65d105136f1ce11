package banner

import "fmt"

const art = `
  ____  _                __  __
 |  _ \| | __ _  ___ ___|  \/  | ___
 | |_) | |/ _` + "`" + ` |/ __/ _ \ |\/| |/ _ \
 |  __/| | (_| | (_|  __/ |  | |  __/
 |_|   |_|\__,_|\___\___|_|  |_|\___|
`

// Print writes the startup banner with the listen address, storage path
// and the source the effective config came from.
func Print(version, addr, dbPath, source string) {
	fmt.Print(art)
	fmt.Printf("  placeme %s\n", version)
	fmt.Printf("  listening on %s\n", addr)
	fmt.Printf("  store at %s\n", dbPath)
	fmt.Printf("  config from %s\n\n", source)
}

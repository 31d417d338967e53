package conf

import "os"

func IsDebug() bool {
	return os.Getenv("TOKENGATE_DEBUG") == "true"
}

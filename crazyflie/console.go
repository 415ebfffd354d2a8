package crazyflie

import (
	"strings"

	"github.com/mikehamer/crazypilot/crtp"
)

func (cf *Crazyflie) consoleSystemInit() {
	cf.responseCallbacks[crtp.PortConsole].PushBack(cf.handleConsoleResponse)
}

// handleConsoleResponse reassembles console output into lines and logs
// each complete line.
func (cf *Crazyflie) handleConsoleResponse(resp []byte) {
	str := string(resp[1:])
	for {
		i := strings.Index(str, "\n")
		if i == -1 {
			cf.accumulatedConsolePrint = cf.accumulatedConsolePrint + str
			break
		}
		cf.logger.Info("console", "line", cf.accumulatedConsolePrint+str[0:i])
		str = str[i+1:]
		cf.accumulatedConsolePrint = ""
	}
}

package crazyflie

import (
	"math"
	"time"

	"github.com/mikehamer/crazypilot/crtp"
)

var logTypeToValue = map[uint8](func([]byte) interface{}){
	1: bytesToUint8,
	2: bytesToUint16,
	3: bytesToUint32,
	4: bytesToInt8,
	5: bytesToInt16,
	6: bytesToInt32,
	7: bytesToFloat32,
	8: bytesToFloat16,
}

var logTypeToSize = map[uint8]uint8{
	1: 1,
	2: 2,
	3: 4,
	4: 1,
	5: 2,
	6: 4,
	7: 4,
	8: 2,
}

type logItem struct {
	ID       uint8
	Datatype uint8
}

type logBlock struct {
	ID        uint8
	Variables []logItem
	handler   func(map[string]float64)
}

func (cf *Crazyflie) logSystemInit() {
	cf.logNameToIndex = make(map[string]logItem)
	cf.logIndexToName = make(map[uint8]string)
	cf.logBlocks = make(map[uint8]*logBlock)

	cf.responseCallbacks[crtp.PortLog].PushBack(cf.handleLogBlock)
}

func (cf *Crazyflie) handleLogBlock(resp []byte) {
	header := crtp.Header(resp[0])
	if header.Port() != crtp.PortLog || header.Channel() != 2 || len(resp) < 5 {
		return
	}

	blockid := resp[1]
	//timestamp := uint32(resp[2]) | (uint32(resp[3]) << 8) | (uint32(resp[4]) << 16)

	cf.logLock.Lock()
	block, ok := cf.logBlocks[blockid]
	if !ok {
		cf.logLock.Unlock()
		// we are getting told about an unknown block
		cf.logger.Trace("unknown log block", "id", blockid)
		return
	}

	values := make(map[string]float64, len(block.Variables))
	idx := 5 // first index of element
	for i := 0; i < len(block.Variables); i++ {
		variable := block.Variables[i]
		datasize := int(logTypeToSize[variable.Datatype])
		if datasize == 0 || idx+datasize > len(resp) {
			break
		}
		data := logTypeToValue[variable.Datatype](resp[idx : idx+datasize])
		values[cf.logIndexToName[variable.ID]] = toFloat64(data)
		idx += datasize
	}
	handler := block.handler
	cf.logLock.Unlock()

	if idx != len(resp) {
		cf.logger.Trace("log block has unexpected size", "id", blockid, "decoded", idx, "received", len(resp))
	}

	if handler != nil {
		handler(values)
	}
}

func (cf *Crazyflie) logTOCGetInfo() (int, uint32, error) {
	request := &LogRequestGetInfo{}
	response := &LogResponseGetInfo{}

	if err := cf.PacketSendAndAwaitResponse(request, response, cf.timeout); err != nil {
		return 0, 0, err
	}

	// if successful, response now includes the data we want
	cf.logLock.Lock()
	cf.logCount = response.Count
	cf.logCRC = response.CRC
	cf.logMaxPacket = response.MaxPacket
	cf.logMaxOps = response.MaxOps
	cf.logLock.Unlock()

	return response.Count, response.CRC, nil
}

// LogTOCGetList loads the table of log variables, from the cache when the
// copter's TOC CRC has been seen before.
func (cf *Crazyflie) LogTOCGetList() error {
	count, crc, err := cf.logTOCGetInfo()
	if err != nil {
		return err
	}

	if cf.cache != nil {
		cached := make(map[string]logItem)
		if err := cf.cache.LoadLog(crc, &cached); err == nil {
			cf.logLock.Lock()
			cf.logNameToIndex = cached
			for k, v := range cached {
				cf.logIndexToName[v.ID] = k
			}
			cf.logLock.Unlock()
			cf.logger.Debug("loaded cached log TOC", "size", len(cached), "crc", hclogCRC(crc))
			return nil
		}
	}

	items := make(map[string]logItem, count)
	for i := 0; i < count; i++ {
		request := &LogRequestGetItem{uint8(i)}
		response := &LogResponseGetItem{ID: uint8(i)}

		var err error
		for attempts := 0; attempts < 5; attempts++ {
			err = cf.PacketSendAndAwaitResponse(request, response, cf.timeout)
			if err == nil || err == ErrorDisconnected {
				break
			}
		}
		if err != nil {
			return err
		}

		items[response.Name] = logItem{response.ID, response.Datatype}
	}

	cf.logLock.Lock()
	for name, item := range items {
		cf.logNameToIndex[name] = item
		cf.logIndexToName[item.ID] = name
	}
	cf.logLock.Unlock()

	cf.logger.Debug("downloaded log TOC", "size", count, "crc", hclogCRC(crc))

	if cf.cache != nil {
		if err := cf.cache.SaveLog(crc, &items); err != nil {
			cf.logger.Warn("caching log TOC failed", "error", err)
		}
	}

	return nil
}

func (cf *Crazyflie) LogBlockClearAll() error {
	request := &LogRequestBlockClearAll{}
	response := &LogResponseBlockClearAll{}

	err := cf.PacketSendAndAwaitResponse(request, response, cf.timeout)
	if err == nil {
		cf.logLock.Lock()
		cf.logBlocks = make(map[uint8]*logBlock)
		cf.logLock.Unlock()
	}
	return err
}

// LogBlockAdd creates a log block on the copter. handler receives the
// decoded variables, keyed by name, every time the block reports.
func (cf *Crazyflie) LogBlockAdd(variables []string, handler func(map[string]float64)) (int, error) {
	if len(variables) > 30 {
		return 0, ErrorLogBlockTooLong
	}

	cf.logLock.Lock()

	// find a free logblock id
	blockid := 0
	for ; blockid < 256; blockid++ {
		if _, ok := cf.logBlocks[uint8(blockid)]; !ok {
			break // if the block id hasn't yet been allocated
		}
	}

	if blockid >= 256 {
		cf.logLock.Unlock()
		return 0, ErrorLogBlockNoMemory
	}

	// create and populate the block object
	block := &logBlock{
		ID:        uint8(blockid),
		Variables: make([]logItem, len(variables)),
		handler:   handler,
	}

	variableTypes := make([]byte, len(variables))
	variableIDs := make([]byte, len(variables))

	for i := 0; i < len(variables); i++ {
		val, ok := cf.logNameToIndex[variables[i]]
		if !ok {
			cf.logLock.Unlock()
			return 0, ErrorLogBlockOrItemNotFound
		}
		block.Variables[i] = val
		variableTypes[i] = val.Datatype
		variableIDs[i] = val.ID
	}

	// reserve the id while we wait for the copter
	cf.logBlocks[block.ID] = block
	cf.logLock.Unlock()

	request := &LogRequestBlockAdd{
		block.ID,
		variableIDs,
		variableTypes,
	}
	response := &LogResponseBlockAdd{block.ID}

	if err := cf.PacketSendAndAwaitResponse(request, response, cf.timeout); err != nil {
		cf.logLock.Lock()
		delete(cf.logBlocks, block.ID)
		cf.logLock.Unlock()
		return -1, err
	}

	return blockid, nil
}

func (cf *Crazyflie) hasLogBlock(blockid uint8) bool {
	cf.logLock.Lock()
	defer cf.logLock.Unlock()
	_, ok := cf.logBlocks[blockid]
	return ok
}

func (cf *Crazyflie) LogBlockStart(blockid uint8, period time.Duration) error {
	if !cf.hasLogBlock(blockid) {
		return ErrorLogBlockOrItemNotFound
	}

	quantized := math.Floor(period.Seconds()*100.0 + 0.5) // nearest multiple of 10ms
	if quantized < 1 {
		return ErrorLogBlockPeriodTooShort
	}
	if quantized > math.MaxUint8 {
		quantized = math.MaxUint8
	}

	request := &LogRequestBlockStart{blockid, uint8(quantized)}
	response := &LogResponseBlockStart{blockid}
	return cf.PacketSendAndAwaitResponse(request, response, cf.timeout)
}

func (cf *Crazyflie) LogBlockDelete(blockid uint8) error {
	request := &LogRequestBlockDelete{blockid}
	response := &LogResponseBlockDelete{blockid}

	err := cf.PacketSendAndAwaitResponse(request, response, cf.timeout)

	cf.logLock.Lock()
	delete(cf.logBlocks, blockid) // a noop if it doesn't exist
	cf.logLock.Unlock()
	return err
}

func (cf *Crazyflie) LogBlockStop(blockid uint8) error {
	if !cf.hasLogBlock(blockid) {
		return ErrorLogBlockOrItemNotFound
	}

	request := &LogRequestBlockStop{blockid}
	response := &LogResponseBlockStop{blockid}
	return cf.PacketSendAndAwaitResponse(request, response, cf.timeout)
}

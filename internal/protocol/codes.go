// Package protocol holds the DVRIP operation-code table shared by the RPC
// multiplexer, the media assembler, and the public client.
package protocol

// Message IDs, as assigned by the DVRIP wire protocol.
const (
	MsgLogin      uint16 = 1000
	MsgKeepAlive  uint16 = 1006

	MsgSystemInfo       uint16 = 1020
	MsgConfigSet        uint16 = 1040
	MsgConfigGet        uint16 = 1042
	MsgConfigDefault    uint16 = 1044
	MsgChannelTitle     uint16 = 1046
	MsgChannelTitleGet  uint16 = 1048

	MsgEncodeCapability uint16 = 1360

	MsgPTZControl     uint16 = 1400
	MsgMonitorData    uint16 = 1410 // OPMonitor "Start", sent with wait_response=false
	MsgMonitorClaim   uint16 = 1413 // OPMonitor "Claim"
	MsgPlayBack       uint16 = 1420 // OPPlayBack Start/Stop (and DownloadStart/DownloadStop)
	MsgPlayBackClaim  uint16 = 1424 // OPPlayBack "Claim"
	MsgTalk           uint16 = 1434
	MsgFileQuery      uint16 = 1440
	MsgMachine        uint16 = 1450 // OPMachine / OPTimeSetting
	MsgTimeQuery      uint16 = 1452

	MsgAuthorityList uint16 = 1470
	MsgUsers         uint16 = 1472
	MsgGroups        uint16 = 1474
	MsgAddGroup      uint16 = 1476
	MsgModifyGroup   uint16 = 1478
	MsgDelGroup      uint16 = 1480
	MsgUser          uint16 = 1482
	MsgModifyUser    uint16 = 1484
	MsgDelUser       uint16 = 1486
	MsgModifyPassword uint16 = 1488

	MsgAlarmSet    uint16 = 1500
	MsgAlarmInfo   uint16 = 1504
	MsgNetAlarm    uint16 = 1506

	MsgNetKeyboard uint16 = 1550
	MsgSnapshot    uint16 = 1560
	MsgUpData      uint16 = 1610
	MsgMailTest    uint16 = 1636

	MsgUpgradeStart    uint16 = 0x5F0
	MsgUpgradeSendFile uint16 = 0x5F2
	MsgUpgradeSystem   uint16 = 0x5F5
)

// OKCodes are the Ret values the protocol treats as success.
var OKCodes = map[uint16]bool{100: true, 515: true}

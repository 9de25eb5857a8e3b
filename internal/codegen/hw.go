package codegen

import (
	"fmt"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/ir"
)

// hwRuntime names the runtime ABI entry point for each hardware-primitive
// statement family (spec.md §4.4's "one runtime entry per hardware
// statement family" rule, e.g. HWGPIOMode -> rb_gpio_mode).
var hwRuntime = map[ast.HWFamily]string{
	ast.HWGPIOMode:        "rb_gpio_mode",
	ast.HWGPIOWrite:       "rb_gpio_write",
	ast.HWGPIORead:        "rb_gpio_read",
	ast.HWI2CSetup:        "rb_i2c_setup",
	ast.HWI2CWrite:        "rb_i2c_write",
	ast.HWI2CRead:         "rb_i2c_read",
	ast.HWSPISetup:        "rb_spi_setup",
	ast.HWSPITransfer:     "rb_spi_transfer",
	ast.HWUARTSetup:       "rb_uart_setup",
	ast.HWUARTWrite:       "rb_uart_write",
	ast.HWUARTRead:        "rb_uart_read",
	ast.HWPWMSetup:        "rb_pwm_setup",
	ast.HWPWMWrite:        "rb_pwm_write",
	ast.HWADCSetup:        "rb_adc_setup",
	ast.HWADCRead:         "rb_adc_read",
	ast.HWWiFiConnect:     "rb_wifi_connect",
	ast.HWWiFiStatus:      "rb_wifi_status",
	ast.HWWiFiDisconnect:  "rb_wifi_disconnect",
	ast.HWMQTTSetup:       "rb_mqtt_setup",
	ast.HWMQTTPublish:     "rb_mqtt_publish",
	ast.HWMQTTSubscribe:   "rb_mqtt_subscribe",
	ast.HWBLEAdvertise:    "rb_ble_advertise",
	ast.HWBLEScan:         "rb_ble_scan",
	ast.HWHTTPGet:         "rb_http_get",
	ast.HWHTTPPost:        "rb_http_post",
	ast.HWUDPSend:         "rb_udp_send",
	ast.HWUDPReceive:      "rb_udp_receive",
	ast.HWOLEDSetup:       "rb_oled_setup",
	ast.HWOLEDLine:        "rb_oled_line",
	ast.HWOLEDClear:       "rb_oled_clear",
	ast.HWLCDSetup:        "rb_lcd_setup",
	ast.HWLCDWrite:        "rb_lcd_write",
	ast.HWLEDSetup:        "rb_led_setup",
	ast.HWLEDSet:          "rb_led_set",
	ast.HWLEDShow:         "rb_led_show",
	ast.HWTimerSetup:      "rb_timer_setup",
	ast.HWNVSRead:         "rb_nvs_read",
	ast.HWNVSWrite:        "rb_nvs_write",
	ast.HWDeepSleep:       "rb_deepsleep_start",
	ast.HWESPNowSetup:     "rb_espnow_setup",
	ast.HWESPNowSend:      "rb_espnow_send",
	ast.HWWatchdogSetup:   "rb_watchdog_setup",
	ast.HWWatchdogFeed:    "rb_watchdog_feed",
	ast.HWNTPSync:         "rb_ntp_sync",
	ast.HWHTTPSGet:        "rb_https_get",
	ast.HWI2SSetup:        "rb_i2s_setup",
	ast.HWI2SWrite:        "rb_i2s_write",
	ast.HWWebSocketSetup:  "rb_websocket_setup",
	ast.HWWebSocketSend:   "rb_websocket_send",
	ast.HWTCPConnect:      "rb_tcp_connect",
	ast.HWTCPSend:         "rb_tcp_send",
	ast.HWTCPReceive:      "rb_tcp_receive",
	ast.HWFSOpen:          "rb_fs_open",
	ast.HWFSWrite:         "rb_fs_write",
	ast.HWFSRead:          "rb_fs_read",
	ast.HWFSClose:         "rb_fs_close",
}

func (g *Gen) lowerHWStmt(n *ast.HWStmt) {
	name, ok := hwRuntime[n.Family]
	if !ok {
		g.fail(fmt.Sprintf("hw:%d", n.Family), "unmapped hardware statement family")
		return
	}
	for _, a := range n.Args {
		g.lowerExpr(a)
	}
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: name, Arg: len(n.Args)})
	if n.Dest != "" {
		g.storeIdent(n.Dest, ir.StorageNumericI32)
	} else if !voidHW[n.Family] {
		// family produces a value but statement form discards it
		g.emit(ir.Inst{Op: ir.OpDrop})
	}
}

// voidHW marks families whose runtime call never returns a value, so the
// no-Dest case above doesn't emit a spurious OpDrop against an empty stack.
var voidHW = map[ast.HWFamily]bool{
	ast.HWGPIOMode: true, ast.HWGPIOWrite: true,
	ast.HWI2CSetup: true, ast.HWI2CWrite: true,
	ast.HWSPISetup: true, ast.HWUARTSetup: true, ast.HWUARTWrite: true,
	ast.HWPWMSetup: true, ast.HWPWMWrite: true, ast.HWADCSetup: true,
	ast.HWWiFiConnect: true, ast.HWWiFiDisconnect: true,
	ast.HWMQTTSetup: true, ast.HWMQTTPublish: true, ast.HWMQTTSubscribe: true,
	ast.HWBLEAdvertise: true,
	ast.HWOLEDSetup:    true, ast.HWOLEDLine: true, ast.HWOLEDClear: true,
	ast.HWLCDSetup: true, ast.HWLCDWrite: true,
	ast.HWLEDSetup: true, ast.HWLEDSet: true, ast.HWLEDShow: true,
	ast.HWTimerSetup: true, ast.HWNVSWrite: true, ast.HWDeepSleep: true,
	ast.HWESPNowSetup: true, ast.HWESPNowSend: true,
	ast.HWWatchdogSetup: true, ast.HWWatchdogFeed: true, ast.HWNTPSync: true,
	ast.HWI2SSetup: true, ast.HWI2SWrite: true,
	ast.HWWebSocketSetup: true, ast.HWWebSocketSend: true,
	ast.HWTCPConnect: true, ast.HWTCPSend: true,
	ast.HWFSWrite: true, ast.HWFSClose: true,
}

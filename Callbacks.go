package main

import (
	"charge_point/common"
)

// Bench and simulator commands: they stand in for the physical cable switch
// and card reader.

func (this *ChargePoint) InsertCable(chargePointID string, payload []byte, responseChannel chan common.Response) {
	this.connector.CableEdge(true)
	responseChannel <- common.Response{Payload: map[string]interface{}{"status": "Accepted", "event": "InsertCable"}}
}

func (this *ChargePoint) RemoveCable(chargePointID string, payload []byte, responseChannel chan common.Response) {
	this.connector.CableEdge(false)
	responseChannel <- common.Response{Payload: map[string]interface{}{"status": "Accepted", "event": "RemoveCable"}}
}

func (this *ChargePoint) Swipe(chargePointID string, payload []byte, responseChannel chan common.Response) {
	this.connector.Swipe()
	responseChannel <- common.Response{Payload: map[string]interface{}{"status": "Accepted", "event": "SwipeDetected"}}
}

func (this *ChargePoint) Status(chargePointID string, payload []byte, responseChannel chan common.Response) {
	responseChannel <- common.Response{Payload: this.Report()}
}

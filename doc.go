// Package mocan adapts a fixed pool of CAN message objects to the transport
// a CANopen stack expects: an array of receive registrations matched by
// identifier and mask, an array of transmit entries, and Send.
//
// The stack calls Init, RxBufferInit and TxBufferInit while the module is in
// configuration mode, then EnterNormalMode. The peripheral interrupt routing
// calls OnReceiveEvent and OnTransmitCompleteEvent (or Interrupt for a shared
// line), and the stack calls Process from its main loop.
package mocan

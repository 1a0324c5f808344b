// Package carrier talks to the network APIs of Indian mobile operators:
// network-based subscriber location, SMS delivery and emergency voice calls.
//
// Every operator speaks its own request and response shape; Client hides the
// differences behind location.NetworkSource. Outgoing requests are rate
// limited per operator.
package carrier

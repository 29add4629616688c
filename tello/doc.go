/*Package tello is a standalone driver for the binary UDP protocol of the Ryze Tello® drone.

Disclaimer

Tello is a registered trademark of Ryze Tech.  The author(s) of this package is/are in no way affiliated with Ryze, DJI, or Intel.
The protocol details were gathered from a variety of sources on the Internet
(especially the generous contributors at  https://tellopilots.com), and by examining data packets sent to/from the Tello.

Use this package at your own risk.  The author(s) is/are in no way responsible for any damage caused either to or by the
drone when using this software.

Features

  * Stick-based flight control, sent every 50ms by a keepalive transmitter
  * Acknowledged flight commands, eg. TakeOff(), Land()
  * Blocking autopilot commands with context cancellation, eg. FlyToHeight(), FlyToYaw(), TurnBy()
  * Flight data enriched with decoded flight log records (MVO position, IMU heading)
  * H.264 video stream reception

Concepts

Connection Types

The drone provides two types of connection: a 'control' connection which handles all commands
to and from the drone including flight and status, and a 'video' connection which
provides an H.264 video stream from the forward-facing camera.  You must establish a control connection to use the drone,
but the video connection is optional and cannot be started unless a control connection is running.

Blocking and Non-blocking Calls

Stick updates (UpdateSticks, SetVelocity) and GetFlightData never wait for the drone.
TakeOff, Land and the autopilot calls block until the drone acknowledges or completes them,
so always give them a context with a deadline.
*/
package tello

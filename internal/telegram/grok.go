// Package telegram provides grok-style pattern definitions for flight-plan telegram parsing.
package telegram

import "flightsheet/internal/patterns"

// Format names. Each one is an independent probe over the telegram text.
const (
	fmtAltitude  = "altitude"
	fmtWaypoint  = "waypoint"
	fmtFlightID  = "flight_id"
	fmtUAVType   = "uav_type"
	fmtRegNumber = "reg_number"
	fmtDate      = "date"
	fmtTime      = "time"
	fmtDepPoint  = "dep_point"
	fmtDestPoint = "dest_point"
)

// Formats defines the telegram field markers.
var Formats = []patterns.Format{
	// Altitude band. Example: -M0050/M0150
	{
		Name:    fmtAltitude,
		Pattern: `-M(?P<min>{ALT4})/M(?P<max>{ALT4})`,
		Fields:  []string{"min", "max"},
	},
	// Route waypoints, anywhere in the text. Example: 5542N03735E
	{
		Name:    fmtWaypoint,
		Pattern: `(?P<coord>{WAYPOINT})`,
		Fields:  []string{"coord"},
	},
	// Example: SID/ABC123
	{
		Name:    fmtFlightID,
		Pattern: `SID/(?P<value>{IDENT})`,
		Fields:  []string{"value"},
	},
	// Example: TYP/MQ9
	{
		Name:    fmtUAVType,
		Pattern: `TYP/(?P<value>{IDENT})`,
		Fields:  []string{"value"},
	},
	// Example: REG/RA0123G
	{
		Name:    fmtRegNumber,
		Pattern: `REG/(?P<value>{IDENT})`,
		Fields:  []string{"value"},
	},
	// Date of flight. Example: DOF/240115
	{
		Name:    fmtDate,
		Pattern: `DOF/(?P<date>{DATE6})`,
		Fields:  []string{"date"},
	},
	// Time marks: first is departure, second is arrival. Example: ZZZZ0930 ZZZZ1010
	{
		Name:    fmtTime,
		Pattern: `ZZZZ(?P<time>{TIME})`,
		Fields:  []string{"time"},
	},
	// Example: DEP/5542N03735E
	{
		Name:    fmtDepPoint,
		Pattern: `DEP/(?P<coord>{POINT})`,
		Fields:  []string{"coord"},
	},
	// Example: DEST/5955N03018E
	{
		Name:    fmtDestPoint,
		Pattern: `DEST/(?P<coord>{POINT})`,
		Fields:  []string{"coord"},
	},
}

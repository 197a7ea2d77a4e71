// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
xpmd maintains the table of known Primecoin peer addresses.

It loads the address table from the peers file in the network specific data
directory, adds any peers given on the command line, periodically writes the
table back to disk, and saves it one final time on shutdown.

The long form of all of the options (except -C) can be specified in a
configuration file that is automatically parsed when xpmd starts up.  By
default, the configuration file is located at ~/.xpmd/xpmd.conf on POSIX-style
operating systems and %LOCALAPPDATA%\xpmd\xpmd.conf on Windows.  The -C
(--configfile) flag, as shown below, can be used to override this location.

Usage:

	xpmd [OPTIONS]

Application Options:

	-V, --version        Display version information and exit
	-A, --appdata=       Path to application home directory
	-C, --configfile=    Path to configuration file
	-b, --datadir=       Directory to store data
	    --testnet        Use the test network
	-a, --addpeer=       Add a peer address to the address table on startup
	    --dumpinterval=  How often to write the known peer addresses to disk
	                     (default: 15m)
	    --logdir=        Directory to log output
	    --nofilelogging  Disable file logging
	-d, --debuglevel=    Logging level for all subsystems {trace, debug, info,
	                     warn, error, critical} -- You may also specify
	                     <subsystem>=<level>,<subsystem2>=<level>,... to set
	                     the log level for individual subsystems -- Use show
	                     to list available subsystems (info)

Help Options:

	-h, --help           Show this help message
*/
package main

package dap

// Unique identifiers for messages returned for errors from requests.
// These values are not mandated by DAP (other than the uniqueness
// requirement), so each implementation is free to choose their own.
const (
	UnsupportedCommand int = 9999
	InternalError      int = 8888

	FailedToLaunch             = 3000
	FailedToAttach             = 3001
	UnableToSetBreakpoints     = 2002
	UnableToDisplayThreads     = 2003
	UnableToProduceStackTrace  = 2004
	UnableToListVariables      = 2005
	UnableToEvaluateExpression = 2009
	UnableToControlExecution   = 2010
	UnableToReadMemory         = 2011
	UnableToWriteMemory        = 2012
	UnableToDisassemble        = 2013
	UnableToListModules        = 2014
	UnableToSetWatchpoints     = 2015
	DebuggeeIsRunning          = 2016
	NoDebugSession             = 2017
)

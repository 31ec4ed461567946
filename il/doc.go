// Package il models routine bodies for a small stack machine as editable
// instruction streams.
//
// Branches always point at a Label, never at an offset, so instructions can
// be inserted and removed freely; labels are only turned into indices by
// Resolve. Anchors (Locate) find edit points in code the caller did not
// write, and Reserve adds frame slots without disturbing the routine's own.
//
// The instruction set:
//
//	push c         push constant (nil, bool, int, string)
//	pop dup swap
//	ldarg n        starg n
//	ldloc s        stloc s
//	add sub mul div neg
//	eq ne lt le gt ge not
//	jmp @l         jmpt @l  jmpf @l
//	call R         pops R's arguments, pushes its result
//	ret            return top of stack
//	new T          push a new object of type T
//	getf f         replace object with its field f
//	setf f         pop value and object, set field f
package il
